// Package classifier implements the five supported model families behind
// one interface. Hyperparameters are fixed per family; the search space
// of the pipeline is the family choice only. Every family trains
// deterministically for a given seed.
package classifier

import (
	"errors"
	"fmt"
	"math"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

// New returns an unfitted classifier of the given family. The seed
// covers all randomness inside the fit (weight init, bootstrap, epoch
// shuffling).
func New(kind core.ClassifierKind, seed int64) (core.Classifier, error) {
	switch kind {
	case core.ClassifierDT:
		return newTree(seed), nil
	case core.ClassifierLogit:
		return newLogit(seed), nil
	case core.ClassifierNB:
		return newBayes(), nil
	case core.ClassifierRF:
		return newForest(seed), nil
	case core.ClassifierSVM:
		return newSVM(seed), nil
	default:
		return nil, fmt.Errorf("unknown classifier %q", kind)
	}
}

// Restore rebuilds a classifier of the given family from serialized
// bytes produced by MarshalBinary.
func Restore(kind core.ClassifierKind, data []byte) (core.Classifier, error) {
	c, err := New(kind, 0)
	if err != nil {
		return nil, err
	}
	if err := c.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("restore %s classifier: %w", kind, err)
	}
	return c, nil
}

// Labels converts positive-class probabilities into 0/1 verdicts using
// the fixed decision threshold.
func Labels(probs []float64) []int {
	out := make([]int, len(probs))
	for i, p := range probs {
		if p >= core.Threshold {
			out[i] = 1
		}
	}
	return out
}

// checkFit validates a training matrix before any family touches it.
func checkFit(X [][]float64, y []int) (nFeatures int, err error) {
	if len(X) == 0 {
		return 0, errors.New("empty training matrix")
	}
	if len(y) != len(X) {
		return 0, fmt.Errorf("matrix has %d rows but %d labels", len(X), len(y))
	}
	p := len(X[0])
	if p == 0 {
		return 0, errors.New("training matrix has no features")
	}
	for i, row := range X {
		if len(row) != p {
			return 0, fmt.Errorf("row %d has %d features, want %d", i, len(row), p)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("row %d column %d is not finite", i, j)
			}
		}
	}
	for i, label := range y {
		if label != 0 && label != 1 {
			return 0, fmt.Errorf("label %d at row %d is not binary", label, i)
		}
	}
	return p, nil
}

// checkPredict validates a prediction matrix against the fitted width.
func checkPredict(X [][]float64, nFeatures int) error {
	if nFeatures == 0 {
		return errors.New("classifier is not fitted")
	}
	for i, row := range X {
		if len(row) != nFeatures {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), nFeatures)
		}
	}
	return nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
