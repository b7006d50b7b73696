// Package prefilter implements the cheap live-path gate that decides
// whether a query name is worth full feature extraction and scoring.
// It is a high-recall, low-precision filter: no entropy, no classifier,
// no allocations.
package prefilter

// Prefilter holds the structural cutoffs for the live-path gate.
// All fields are tunable configuration, not fixed constants.
type Prefilter struct {
	// MaxNameLen flags any name strictly longer than this.
	MaxNameLen int `koanf:"max_name_len" validate:"gte=0"`

	// MaxDots flags any name with strictly more '.' characters than this.
	MaxDots int `koanf:"max_dots" validate:"gte=0"`

	// DigitFraction and DigitMinLen flag names whose digit fraction
	// exceeds DigitFraction while being longer than DigitMinLen.
	DigitFraction float64 `koanf:"digit_fraction" validate:"gte=0,lte=1"`
	DigitMinLen   int     `koanf:"digit_min_len" validate:"gte=0"`
}

// Default returns the stock pre-filter cutoffs.
func Default() Prefilter {
	return Prefilter{
		MaxNameLen:    50,
		MaxDots:       5,
		DigitFraction: 0.3,
		DigitMinLen:   20,
	}
}

// WorthScoring reports whether name should be handed to the full pipeline.
// Single pass, no allocations.
func (p Prefilter) WorthScoring(name string) bool {
	if name == "" {
		return false
	}
	if len(name) > p.MaxNameLen {
		return true
	}

	dots, digits := 0, 0
	for i := 0; i < len(name); i++ {
		switch {
		case name[i] == '.':
			dots++
		case name[i] >= '0' && name[i] <= '9':
			digits++
		}
	}

	if dots > p.MaxDots {
		return true
	}
	if len(name) > p.DigitMinLen && float64(digits)/float64(len(name)) > p.DigitFraction {
		return true
	}
	return false
}
