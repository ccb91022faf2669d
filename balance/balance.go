// Package balance implements the class-rebalancing strategies applied to
// the training split before fitting.
package balance

import (
	"fmt"
	"math/rand"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

// New returns the balancer for kind.
func New(kind core.BalancerKind) (core.Balancer, error) {
	switch kind {
	case core.BalanceNone:
		return passthrough{}, nil
	case core.BalanceRUS:
		return undersampler{}, nil
	case core.BalanceROS:
		return oversampler{}, nil
	default:
		return nil, fmt.Errorf("unknown balancer %q", kind)
	}
}

type passthrough struct{}

func (passthrough) Kind() core.BalancerKind { return core.BalanceNone }

func (passthrough) Balance(X [][]float64, y []int, seed int64) ([][]float64, []int) {
	return X, y
}

type undersampler struct{}

func (undersampler) Kind() core.BalancerKind { return core.BalanceRUS }

// Balance drops a random subset of the majority class so both classes
// end up at the minority count.
func (undersampler) Balance(X [][]float64, y []int, seed int64) ([][]float64, []int) {
	minIdx, majIdx := splitByClass(y)
	if len(minIdx) == 0 || len(majIdx) == 0 {
		return X, y
	}

	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(majIdx))
	keep := make([]int, 0, 2*len(minIdx))
	keep = append(keep, minIdx...)
	for _, p := range perm[:len(minIdx)] {
		keep = append(keep, majIdx[p])
	}
	return collect(X, y, keep, rng)
}

type oversampler struct{}

func (oversampler) Kind() core.BalancerKind { return core.BalanceROS }

// Balance keeps every row and duplicates random minority rows, drawn
// with replacement, until both classes reach the majority count.
func (oversampler) Balance(X [][]float64, y []int, seed int64) ([][]float64, []int) {
	minIdx, majIdx := splitByClass(y)
	if len(minIdx) == 0 || len(majIdx) == 0 {
		return X, y
	}

	rng := rand.New(rand.NewSource(seed))
	keep := make([]int, 0, 2*len(majIdx))
	for i := range y {
		keep = append(keep, i)
	}
	for n := len(minIdx); n < len(majIdx); n++ {
		keep = append(keep, minIdx[rng.Intn(len(minIdx))])
	}
	return collect(X, y, keep, rng)
}

// splitByClass returns the row indices of the minority and majority
// classes. On an exact tie class 1 is reported as minority, which makes
// both resamplers no-ops apart from reordering.
func splitByClass(y []int) (minIdx, majIdx []int) {
	var zeros, ones []int
	for i, label := range y {
		if label == 1 {
			ones = append(ones, i)
		} else {
			zeros = append(zeros, i)
		}
	}
	if len(ones) <= len(zeros) {
		return ones, zeros
	}
	return zeros, ones
}

// collect materializes the chosen rows in random order so fitters never
// see the classes grouped.
func collect(X [][]float64, y []int, keep []int, rng *rand.Rand) ([][]float64, []int) {
	rng.Shuffle(len(keep), func(i, j int) { keep[i], keep[j] = keep[j], keep[i] })
	outX := make([][]float64, len(keep))
	outY := make([]int, len(keep))
	for i, idx := range keep {
		outX[i] = X[idx]
		outY[i] = y[idx]
	}
	return outX, outY
}
