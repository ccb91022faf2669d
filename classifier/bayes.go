package classifier

import (
	"bytes"
	"encoding/gob"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

// Bayes is gaussian naive Bayes. Per class it stores the prior and the
// per-feature mean and variance of the training rows.
type Bayes struct {
	Counts [2]int
	Mean   [2][]float64
	Var    [2][]float64
	N      int
}

func newBayes() *Bayes { return &Bayes{} }

func (m *Bayes) Kind() core.ClassifierKind { return core.ClassifierNB }

func (m *Bayes) Fit(X [][]float64, y []int) error {
	p, err := checkFit(X, y)
	if err != nil {
		return err
	}
	m.N = len(X)

	var byClass [2][][]float64
	for i, row := range X {
		byClass[y[i]] = append(byClass[y[i]], row)
	}

	// Variance floor proportional to the widest feature spread, so a
	// constant column never divides by zero.
	epsilon := 1e-9 * maxColumnVariance(X, p)
	if epsilon == 0 {
		epsilon = 1e-12
	}

	for cls := 0; cls < 2; cls++ {
		rows := byClass[cls]
		m.Counts[cls] = len(rows)
		if len(rows) == 0 {
			m.Mean[cls], m.Var[cls] = nil, nil
			continue
		}
		m.Mean[cls] = make([]float64, p)
		m.Var[cls] = make([]float64, p)
		col := make([]float64, len(rows))
		for j := 0; j < p; j++ {
			for i, row := range rows {
				col[i] = row[j]
			}
			m.Mean[cls][j] = stat.Mean(col, nil)
			m.Var[cls][j] = stat.PopVariance(col, nil) + epsilon
		}
	}
	return nil
}

func (m *Bayes) PredictProba(X [][]float64) ([]float64, error) {
	width := 0
	if m.Mean[0] != nil {
		width = len(m.Mean[0])
	} else if m.Mean[1] != nil {
		width = len(m.Mean[1])
	}
	if err := checkPredict(X, width); err != nil {
		return nil, err
	}

	out := make([]float64, len(X))
	for i, row := range X {
		ll0 := m.logJoint(0, row)
		ll1 := m.logJoint(1, row)
		// P(1|x) through the stable log-odds form.
		out[i] = 1.0 / (1.0 + math.Exp(ll0-ll1))
	}
	return out, nil
}

func (m *Bayes) logJoint(cls int, row []float64) float64 {
	if m.Counts[cls] == 0 {
		return math.Inf(-1)
	}
	ll := math.Log(float64(m.Counts[cls]) / float64(m.N))
	for j, v := range row {
		mu := m.Mean[cls][j]
		va := m.Var[cls][j]
		ll += -0.5*math.Log(2*math.Pi*va) - (v-mu)*(v-mu)/(2*va)
	}
	return ll
}

func maxColumnVariance(X [][]float64, p int) float64 {
	maxVar := 0.0
	col := make([]float64, len(X))
	for j := 0; j < p; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		if v := stat.PopVariance(col, nil); v > maxVar {
			maxVar = v
		}
	}
	return maxVar
}

// bayesState mirrors Bayes without its methods so gob does not try to
// call MarshalBinary on an unaddressable copy.
type bayesState Bayes

func (m *Bayes) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode((*bayesState)(m)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Bayes) UnmarshalBinary(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode((*bayesState)(m))
}
