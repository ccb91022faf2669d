// Package normalize implements feature scaling. Parameters are fit on
// the training split only; Apply is a pure function of the fitted
// parameters so training and prediction cannot drift apart.
package normalize

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

// New returns the normalizer for kind.
func New(kind core.NormalizerKind) (core.Normalizer, error) {
	switch kind {
	case core.NormNone:
		return identity{}, nil
	case core.NormMinMax:
		return minmax{}, nil
	case core.NormStd:
		return standard{}, nil
	default:
		return nil, fmt.Errorf("unknown normalizer %q", kind)
	}
}

type identity struct{}

func (identity) Kind() core.NormalizerKind { return core.NormNone }

func (identity) Fit(X [][]float64) (*core.ScaleParams, error) {
	if len(X) == 0 {
		return nil, errors.New("fit normalizer: empty matrix")
	}
	return &core.ScaleParams{Kind: core.NormNone}, nil
}

type minmax struct{}

func (minmax) Kind() core.NormalizerKind { return core.NormMinMax }

func (minmax) Fit(X [][]float64) (*core.ScaleParams, error) {
	if len(X) == 0 {
		return nil, errors.New("fit normalizer: empty matrix")
	}
	cols := len(X[0])
	p := &core.ScaleParams{
		Kind: core.NormMinMax,
		Min:  make([]float64, cols),
		Max:  make([]float64, cols),
	}
	for j := 0; j < cols; j++ {
		col := column(X, j)
		p.Min[j] = floats.Min(col)
		p.Max[j] = floats.Max(col)
	}
	return p, nil
}

type standard struct{}

func (standard) Kind() core.NormalizerKind { return core.NormStd }

func (standard) Fit(X [][]float64) (*core.ScaleParams, error) {
	if len(X) == 0 {
		return nil, errors.New("fit normalizer: empty matrix")
	}
	cols := len(X[0])
	p := &core.ScaleParams{
		Kind: core.NormStd,
		Mean: make([]float64, cols),
		Std:  make([]float64, cols),
	}
	for j := 0; j < cols; j++ {
		col := column(X, j)
		p.Mean[j] = stat.Mean(col, nil)
		p.Std[j] = stat.PopStdDev(col, nil)
		// Constant columns scale to zero offset instead of dividing by zero.
		if p.Std[j] == 0 {
			p.Std[j] = 1
		}
	}
	return p, nil
}

// Apply transforms a matrix with fitted parameters. Values outside the
// fitted range are not clipped. The input is never modified.
func Apply(p *core.ScaleParams, X [][]float64) [][]float64 {
	if p == nil || p.Kind == core.NormNone {
		return X
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = ApplyRow(p, row)
	}
	return out
}

// ApplyRow transforms a single feature vector with fitted parameters.
func ApplyRow(p *core.ScaleParams, x []float64) []float64 {
	if p == nil || p.Kind == core.NormNone {
		return x
	}
	out := make([]float64, len(x))
	switch p.Kind {
	case core.NormMinMax:
		for j, v := range x {
			span := p.Max[j] - p.Min[j]
			if span == 0 {
				span = 1
			}
			out[j] = (v - p.Min[j]) / span
		}
	case core.NormStd:
		for j, v := range x {
			out[j] = (v - p.Mean[j]) / p.Std[j]
		}
	}
	return out
}

func column(X [][]float64, j int) []float64 {
	col := make([]float64, len(X))
	for i := range X {
		col[i] = X[i][j]
	}
	return col
}
