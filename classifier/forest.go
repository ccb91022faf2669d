package classifier

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

// Forest is a bagging ensemble of Trees. Probabilities are the mean of
// the per-tree leaf probabilities.
type Forest struct {
	NEstimators int
	MaxDepth    int
	Seed        int64

	trees     []*Tree
	nFeatures int
}

func newForest(seed int64) *Forest {
	return &Forest{
		NEstimators: 100,
		Seed:        seed,
	}
}

func (f *Forest) Kind() core.ClassifierKind { return core.ClassifierRF }

// Fit trains every tree on its own bootstrap sample. Tree i always
// derives its seed from Seed+i, so the forest is reproducible no matter
// how the fits are scheduled.
func (f *Forest) Fit(X [][]float64, y []int) error {
	p, err := checkFit(X, y)
	if err != nil {
		return err
	}
	f.nFeatures = p
	maxFeatures := int(math.Max(1, math.Floor(math.Sqrt(float64(p)))))

	n := len(X)
	f.trees = make([]*Tree, f.NEstimators)
	errs := make([]error, f.NEstimators)

	var wg sync.WaitGroup
	for i := 0; i < f.NEstimators; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			treeSeed := f.Seed + int64(i)
			rng := rand.New(rand.NewSource(treeSeed))

			Xb := make([][]float64, n)
			yb := make([]int, n)
			for j := 0; j < n; j++ {
				k := rng.Intn(n)
				Xb[j] = X[k]
				yb[j] = y[k]
			}

			tree := newTree(treeSeed)
			tree.MaxDepth = f.MaxDepth
			tree.MaxFeatures = maxFeatures
			if err := tree.Fit(Xb, yb); err != nil {
				errs[i] = fmt.Errorf("tree %d: %w", i, err)
				return
			}
			f.trees[i] = tree
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (f *Forest) PredictProba(X [][]float64) ([]float64, error) {
	if err := checkPredict(X, f.nFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for _, tree := range f.trees {
		probs, err := tree.PredictProba(X)
		if err != nil {
			return nil, err
		}
		for i, p := range probs {
			out[i] += p
		}
	}
	for i := range out {
		out[i] /= float64(len(f.trees))
	}
	return out, nil
}

type forestState struct {
	NEstimators int
	MaxDepth    int
	Seed        int64
	NFeatures   int
	Trees       [][]byte
}

func (f *Forest) MarshalBinary() ([]byte, error) {
	state := forestState{
		NEstimators: f.NEstimators,
		MaxDepth:    f.MaxDepth,
		Seed:        f.Seed,
		NFeatures:   f.nFeatures,
		Trees:       make([][]byte, len(f.trees)),
	}
	for i, tree := range f.trees {
		b, err := tree.MarshalBinary()
		if err != nil {
			return nil, err
		}
		state.Trees[i] = b
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *Forest) UnmarshalBinary(data []byte) error {
	var state forestState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return err
	}
	f.NEstimators = state.NEstimators
	f.MaxDepth = state.MaxDepth
	f.Seed = state.Seed
	f.nFeatures = state.NFeatures
	f.trees = make([]*Tree, len(state.Trees))
	for i, b := range state.Trees {
		tree := &Tree{}
		if err := tree.UnmarshalBinary(b); err != nil {
			return err
		}
		f.trees[i] = tree
	}
	return nil
}
