package score

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/dnsguard/dnsguard/pkg/feature"
)

// artifactFile is the on-disk JSON shape of a model artifact:
//
//	{
//	  "name": "logistic-v3",
//	  "intercept": -4.2,
//	  "weights": {"total_len": 0.05, ...}
//	}
//
// Weights are keyed by feature column name so artifacts survive field
// reordering in code; the key set must match the feature schema exactly.
type artifactFile struct {
	Name      string             `json:"name"`
	Intercept float64            `json:"intercept"`
	Weights   map[string]float64 `json:"weights"`
}

// Logistic scores vectors with a logistic regression model. Weights are in
// canonical feature column order. The zero value is unusable; construct
// via LoadArtifact or NewLogistic.
type Logistic struct {
	Intercept float64
	Weights   []float64
}

// NewLogistic builds a logistic scorer from ordered weights. The weight
// count must match the feature schema width.
func NewLogistic(intercept float64, weights []float64) (*Logistic, error) {
	if len(weights) != feature.NumColumns {
		return nil, fmt.Errorf("logistic model needs %d weights, got %d", feature.NumColumns, len(weights))
	}
	return &Logistic{Intercept: intercept, Weights: weights}, nil
}

// Score computes sigmoid(intercept + w·x) per vector, order-preserving.
func (l *Logistic) Score(_ context.Context, vectors []feature.Vector) ([]float64, error) {
	scores := make([]float64, len(vectors))
	for i := range vectors {
		z := l.Intercept
		for j, x := range vectors[i].Values() {
			z += l.Weights[j] * x
		}
		scores[i] = 1.0 / (1.0 + math.Exp(-z))
	}
	return scores, nil
}

// LoadArtifact reads a JSON model artifact from path, validating the name
// and the weight key set against the feature schema before returning a
// usable scorer.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model artifact: %w", err)
	}

	var af artifactFile
	if err := json.Unmarshal(data, &af); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact %s: %w", path, err)
	}

	if af.Name == "" {
		return nil, fmt.Errorf("model artifact %s: missing name", path)
	}

	cols := feature.Columns()
	if len(af.Weights) != len(cols) {
		return nil, fmt.Errorf("model artifact %s: expected %d weights, got %d", path, len(cols), len(af.Weights))
	}

	weights := make([]float64, len(cols))
	for i, col := range cols {
		w, ok := af.Weights[col]
		if !ok {
			return nil, fmt.Errorf("model artifact %s: missing weight for feature %q", path, col)
		}
		weights[i] = w
	}

	return &Artifact{
		Name:   af.Name,
		Scorer: &Logistic{Intercept: af.Intercept, Weights: weights},
	}, nil
}
