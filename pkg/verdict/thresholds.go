package verdict

// Thresholds holds every tunable constant of the decision rules. The
// defaults are hand-tuned against captured traffic and carry no documented
// derivation, which is exactly why they live in configuration rather than
// in the rule code.
type Thresholds struct {
	// Score is the default classifier decision threshold (rule 2e).
	Score float64 `koanf:"score" validate:"gte=0,lte=1"`

	// WhitelistScore is the probability above which even a whitelisted
	// name is flagged (rule 1b). See the package doc note on this rule.
	WhitelistScore float64 `koanf:"whitelist_score" validate:"gte=0,lte=1"`

	// UncommonTLDScore is the reduced threshold applied when the TLD is
	// uncommon (rule 2f).
	UncommonTLDScore float64 `koanf:"uncommon_tld_score" validate:"gte=0,lte=1"`

	// KeywordEntropy is the full-name entropy cutoff paired with a
	// tunneling keyword (rule 2b).
	KeywordEntropy float64 `koanf:"keyword_entropy" validate:"gte=0"`

	// HighEntropy is the full-name entropy cutoff used by the whitelist
	// override (rule 1a) and the uncommon-TLD rule (rule 2c).
	HighEntropy float64 `koanf:"high_entropy" validate:"gte=0"`

	// LabelEntropy is the per-label entropy cutoff for deeply nested
	// names (rule 2d).
	LabelEntropy float64 `koanf:"label_entropy" validate:"gte=0"`

	// ManyLabels is the label count treated as deep nesting (rules 1a, 2d).
	ManyLabels int `koanf:"many_labels" validate:"gte=1"`

	// KeywordLabels is the label count paired with a tunneling keyword
	// (rule 2b).
	KeywordLabels int `koanf:"keyword_labels" validate:"gte=1"`

	// LongName is the total length treated as abnormally long when the
	// TLD is uncommon (rule 2c).
	LongName int `koanf:"long_name" validate:"gte=1"`

	// DigitFraction is the digit fraction of the longest label treated
	// as suspicious when the TLD is uncommon (rule 2c).
	DigitFraction float64 `koanf:"digit_fraction" validate:"gte=0,lte=1"`
}

// DefaultThresholds returns the stock rule constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Score:            0.7,
		WhitelistScore:   0.95,
		UncommonTLDScore: 0.5,
		KeywordEntropy:   3.6,
		HighEntropy:      3.8,
		LabelEntropy:     4.0,
		ManyLabels:       5,
		KeywordLabels:    3,
		LongName:         60,
		DigitFraction:    0.3,
	}
}
