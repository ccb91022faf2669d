package classifier

import (
	"bytes"
	"encoding/gob"
	"math/rand"
	"runtime"
	"sync"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

// Logit is binary logistic regression trained with full-batch gradient
// descent on the mean cross-entropy.
type Logit struct {
	W    []float64
	B    float64
	Lr   float64
	Iter int
	Seed int64
}

func newLogit(seed int64) *Logit {
	return &Logit{
		Lr:   0.1,
		Iter: 500,
		Seed: seed,
	}
}

func (m *Logit) Kind() core.ClassifierKind { return core.ClassifierLogit }

func (m *Logit) Fit(X [][]float64, y []int) error {
	p, err := checkFit(X, y)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(m.Seed))
	m.W = make([]float64, p)
	for j := range m.W {
		// Small random init to break symmetry.
		m.W[j] = rng.NormFloat64() * 0.01
	}
	m.B = 0

	n := float64(len(X))
	gW := make([]float64, p)
	for it := 0; it < m.Iter; it++ {
		for j := range gW {
			gW[j] = 0
		}
		gB := 0.0
		for i, row := range X {
			z := m.B
			for j, v := range row {
				z += m.W[j] * v
			}
			d := sigmoid(z) - float64(y[i])
			for j, v := range row {
				gW[j] += d * v
			}
			gB += d
		}
		for j := range m.W {
			m.W[j] -= m.Lr * gW[j] / n
		}
		m.B -= m.Lr * gB / n
	}
	return nil
}

// PredictProba scores rows in parallel chunks sized to the CPU count.
func (m *Logit) PredictProba(X [][]float64) ([]float64, error) {
	if err := checkPredict(X, len(m.W)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))

	workers := runtime.GOMAXPROCS(0)
	chunk := (len(X) + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < len(X); start += chunk {
		end := start + chunk
		if end > len(X) {
			end = len(X)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				z := m.B
				for j, v := range X[i] {
					z += m.W[j] * v
				}
				out[i] = sigmoid(z)
			}
		}(start, end)
	}
	wg.Wait()
	return out, nil
}

// logitState mirrors Logit without its methods so gob does not try to
// call MarshalBinary on an unaddressable copy.
type logitState Logit

func (m *Logit) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode((*logitState)(m)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Logit) UnmarshalBinary(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode((*logitState)(m))
}
