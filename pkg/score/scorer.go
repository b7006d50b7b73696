// Package score defines the contract with the externally trained
// probability classifier and the model artifact format used to load one.
// The detection core treats the scorer as a pure function from feature
// vectors to probabilities; training and model selection happen elsewhere.
package score

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/dnsguard/dnsguard/pkg/feature"
)

// ErrScoreOutOfRange reports a scorer that produced a probability outside
// [0,1] or NaN. Scores are never clamped or defaulted; a bad score is a
// data-validity error the caller must see.
var ErrScoreOutOfRange = errors.New("classifier score outside [0,1]")

// Scorer produces one suspicion probability in [0,1] per input vector,
// order-preserving.
type Scorer interface {
	Score(ctx context.Context, vectors []feature.Vector) ([]float64, error)
}

// ScorerFunc adapts a plain function to the Scorer interface.
type ScorerFunc func(ctx context.Context, vectors []feature.Vector) ([]float64, error)

func (f ScorerFunc) Score(ctx context.Context, vectors []feature.Vector) ([]float64, error) {
	return f(ctx, vectors)
}

// ValidateScores checks that every score is a probability. Row index and
// value are included in the error so the operator can find the bad model
// output.
func ValidateScores(scores []float64) error {
	for i, s := range scores {
		if math.IsNaN(s) || s < 0 || s > 1 {
			return fmt.Errorf("row %d: score %v: %w", i, s, ErrScoreOutOfRange)
		}
	}
	return nil
}

// Artifact pairs a scorer with its display name. Both fields are explicit
// and validated at load time; there is no shape probing at call time.
type Artifact struct {
	Name   string
	Scorer Scorer
}
