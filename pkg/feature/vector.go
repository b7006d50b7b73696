// Package feature assembles lexical signals into the fixed-schema numeric
// vector consumed by the probability scorer.
package feature

import (
	"math"

	"github.com/dnsguard/dnsguard/pkg/lexical"
)

// Vector is the fixed, ordered feature record computed from one query name.
// It is immutable once built and one-to-one with the input string: the same
// name always produces a bit-identical vector. Binary signals are encoded
// as 0/1 so the whole vector is uniform classifier input.
type Vector struct {
	TotalLen                float64 `json:"total_len" parquet:"total_len"`
	NumLabels               float64 `json:"num_labels" parquet:"num_labels"`
	MaxLabelLen             float64 `json:"max_label_len" parquet:"max_label_len"`
	MeanLabelLen            float64 `json:"mean_label_len" parquet:"mean_label_len"`
	StdLabelLen             float64 `json:"std_label_len" parquet:"std_label_len"`
	EntropyFull             float64 `json:"entropy_full" parquet:"entropy_full"`
	EntropyLabelMean        float64 `json:"entropy_label_mean" parquet:"entropy_label_mean"`
	EntropyLabelMax         float64 `json:"entropy_label_max" parquet:"entropy_label_max"`
	DigitRatio              float64 `json:"digit_ratio" parquet:"digit_ratio"`
	VowelRatio              float64 `json:"vowel_ratio" parquet:"vowel_ratio"`
	ConsonantRatio          float64 `json:"consonant_ratio" parquet:"consonant_ratio"`
	NonAlnumRatio           float64 `json:"non_alnum_ratio" parquet:"non_alnum_ratio"`
	RepeatRunMax            float64 `json:"repeat_run_max" parquet:"repeat_run_max"`
	TLDUncommon             float64 `json:"tld_uncommon" parquet:"tld_uncommon"`
	Base64LabelPresent      float64 `json:"base64_label_present" parquet:"base64_label_present"`
	TunnelingKeywordPresent float64 `json:"tunneling_keyword_present" parquet:"tunneling_keyword_present"`
	LongestLabelDigitFrac   float64 `json:"longest_label_digit_frac" parquet:"longest_label_digit_frac"`
}

// columns is the canonical field order shared with model artifacts.
var columns = []string{
	"total_len",
	"num_labels",
	"max_label_len",
	"mean_label_len",
	"std_label_len",
	"entropy_full",
	"entropy_label_mean",
	"entropy_label_max",
	"digit_ratio",
	"vowel_ratio",
	"consonant_ratio",
	"non_alnum_ratio",
	"repeat_run_max",
	"tld_uncommon",
	"base64_label_present",
	"tunneling_keyword_present",
	"longest_label_digit_frac",
}

// Columns returns the feature names in their canonical order. The returned
// slice is a copy; callers may not rely on mutating it.
func Columns() []string {
	out := make([]string, len(columns))
	copy(out, columns)
	return out
}

// NumColumns is the width of the feature vector.
const NumColumns = 17

// Values returns the vector fields in canonical column order.
func (v *Vector) Values() []float64 {
	return []float64{
		v.TotalLen,
		v.NumLabels,
		v.MaxLabelLen,
		v.MeanLabelLen,
		v.StdLabelLen,
		v.EntropyFull,
		v.EntropyLabelMean,
		v.EntropyLabelMax,
		v.DigitRatio,
		v.VowelRatio,
		v.ConsonantRatio,
		v.NonAlnumRatio,
		v.RepeatRunMax,
		v.TLDUncommon,
		v.Base64LabelPresent,
		v.TunnelingKeywordPresent,
		v.LongestLabelDigitFrac,
	}
}

// Builder computes feature vectors against a fixed set of reference data.
// It is stateless beyond the immutable sets and safe for concurrent use.
type Builder struct {
	sets lexical.ReferenceSets
}

// NewBuilder returns a Builder using the provided reference sets.
func NewBuilder(sets lexical.ReferenceSets) Builder {
	return Builder{sets: sets}
}

// Build computes the feature vector for one query name. It never fails:
// an empty or malformed name yields the zero vector.
func (b Builder) Build(name string) Vector {
	labels := lexical.SplitLabels(name)

	// Label-length stats treat the empty label set as a single
	// zero-length label so mean/std stay defined.
	lens := make([]float64, 0, len(labels))
	for _, l := range labels {
		lens = append(lens, float64(len(l)))
	}
	if len(lens) == 0 {
		lens = append(lens, 0)
	}

	var maxLen, sumLen float64
	for _, n := range lens {
		sumLen += n
		if n > maxLen {
			maxLen = n
		}
	}
	meanLen := sumLen / float64(len(lens))

	var variance float64
	for _, n := range lens {
		d := n - meanLen
		variance += d * d
	}
	variance /= float64(len(lens))

	meanEnt, maxEnt := lexical.LabelEntropyStats(labels)
	ratios := lexical.CharRatios(name)

	v := Vector{
		TotalLen:              float64(len(name)),
		NumLabels:             float64(len(labels)),
		MaxLabelLen:           maxLen,
		MeanLabelLen:          meanLen,
		StdLabelLen:           math.Sqrt(variance),
		EntropyFull:           lexical.Entropy(name),
		EntropyLabelMean:      meanEnt,
		EntropyLabelMax:       maxEnt,
		DigitRatio:            ratios.Digit,
		VowelRatio:            ratios.Vowel,
		ConsonantRatio:        ratios.Consonant,
		NonAlnumRatio:         ratios.NonAlnum,
		RepeatRunMax:          float64(lexical.LongestRepeatRun(name)),
		LongestLabelDigitFrac: lexical.LongestLabelDigitFraction(labels),
	}

	if b.sets.IsUncommonTLD(name) {
		v.TLDUncommon = 1
	}
	if lexical.HasEncodedLabel(labels) {
		v.Base64LabelPresent = 1
	}
	if b.sets.HasTunnelingKeyword(labels) {
		v.TunnelingKeywordPresent = 1
	}

	return v
}
