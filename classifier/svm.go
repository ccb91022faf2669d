package classifier

import (
	"bytes"
	"encoding/gob"
	"math/rand"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

// SVM is a linear support vector machine trained with the Pegasos
// subgradient method on the hinge loss.
type SVM struct {
	W      []float64
	B      float64
	Lambda float64 // L2 regularization strength
	Iter   int     // epochs over the shuffled training set
	Seed   int64
}

func newSVM(seed int64) *SVM {
	return &SVM{
		Lambda: 0.01,
		Iter:   500,
		Seed:   seed,
	}
}

func (m *SVM) Kind() core.ClassifierKind { return core.ClassifierSVM }

func (m *SVM) Fit(X [][]float64, y []int) error {
	p, err := checkFit(X, y)
	if err != nil {
		return err
	}

	m.W = make([]float64, p)
	m.B = 0

	// Hinge loss wants labels in {-1,+1}.
	signed := make([]float64, len(y))
	for i, label := range y {
		signed[i] = 2*float64(label) - 1
	}

	rng := rand.New(rand.NewSource(m.Seed))
	order := rng.Perm(len(X))
	step := 0
	for it := 0; it < m.Iter; it++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, i := range order {
			step++
			eta := 1.0 / (m.Lambda * float64(step))
			margin := m.B
			for j, v := range X[i] {
				margin += m.W[j] * v
			}
			decay := 1 - eta*m.Lambda
			if signed[i]*margin < 1 {
				for j, v := range X[i] {
					m.W[j] = decay*m.W[j] + eta*signed[i]*v
				}
				m.B += eta * signed[i]
			} else {
				for j := range m.W {
					m.W[j] *= decay
				}
			}
		}
	}
	return nil
}

// PredictProba maps the signed margin through a logistic link. The 0.5
// threshold then lands exactly on the decision boundary.
func (m *SVM) PredictProba(X [][]float64) ([]float64, error) {
	if err := checkPredict(X, len(m.W)); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, row := range X {
		margin := m.B
		for j, v := range row {
			margin += m.W[j] * v
		}
		out[i] = sigmoid(margin)
	}
	return out, nil
}

// svmState mirrors SVM without its methods so gob does not try to
// call MarshalBinary on an unaddressable copy.
type svmState SVM

func (m *SVM) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode((*svmState)(m)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *SVM) UnmarshalBinary(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode((*svmState)(m))
}
