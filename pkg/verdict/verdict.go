// Package verdict implements the hybrid decision engine: an ordered rule
// set that combines deterministic structural heuristics with the external
// classifier probability to label a query name Safe or Suspicious.
package verdict

import "math"

// Label is the terminal classification of one query.
type Label string

const (
	LabelSafe       Label = "Safe"
	LabelSuspicious Label = "Suspicious"
)

func (l Label) String() string { return string(l) }

// Marker returns the symbolic label-of-record used in audit output,
// distinguishing the two outcomes without relying on a raw boolean.
func (l Label) Marker() string {
	if l == LabelSuspicious {
		return "SUSPICIOUS"
	}
	return "SAFE"
}

// Verdict is the decision engine output for one query. Confidence is the
// classifier probability rescaled to [0,100] with two-decimal rounding;
// heuristic overrides change the label, never the confidence number.
type Verdict struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Confidence converts a classifier probability to the displayed
// confidence: score x 100, rounded to two decimals.
func Confidence(score float64) float64 {
	return math.Round(score*100*100) / 100
}
