package core

import (
	"fmt"
	"sort"
	"time"
)

// BalancerKind identifies a class-rebalancing strategy for the training split.
type BalancerKind string

// NormalizerKind identifies a feature-scaling strategy.
type NormalizerKind string

// ClassifierKind identifies one of the supported model families.
type ClassifierKind string

const (
	BalanceNone BalancerKind = "none"
	BalanceRUS  BalancerKind = "rus" // random undersampling
	BalanceROS  BalancerKind = "ros" // random oversampling

	NormNone   NormalizerKind = "none"
	NormMinMax NormalizerKind = "minmax"
	NormStd    NormalizerKind = "std"

	ClassifierDT    ClassifierKind = "dt"    // decision tree
	ClassifierLogit ClassifierKind = "logit" // logistic regression
	ClassifierNB    ClassifierKind = "nb"    // gaussian naive bayes
	ClassifierRF    ClassifierKind = "rf"    // random forest
	ClassifierSVM   ClassifierKind = "svm"   // linear support vector machine
)

// Enumeration order is fixed. Selection ties are broken by the first
// combination in (classifier, normalizer, balancer) iteration order, so
// reordering these slices changes which model wins a tie.
var (
	Balancers   = []BalancerKind{BalanceNone, BalanceRUS, BalanceROS}
	Normalizers = []NormalizerKind{NormNone, NormMinMax, NormStd}
	Classifiers = []ClassifierKind{ClassifierDT, ClassifierLogit, ClassifierNB, ClassifierRF, ClassifierSVM}
)

func ParseBalancer(s string) (BalancerKind, error) {
	for _, k := range Balancers {
		if s == string(k) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown balancer %q (want one of %v)", s, Balancers)
}

func ParseNormalizer(s string) (NormalizerKind, error) {
	for _, k := range Normalizers {
		if s == string(k) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown normalizer %q (want one of %v)", s, Normalizers)
}

func ParseClassifier(s string) (ClassifierKind, error) {
	for _, k := range Classifiers {
		if s == string(k) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown classifier %q (want one of %v)", s, Classifiers)
}

// Combination is one point of the model search grid.
type Combination struct {
	Classifier ClassifierKind `json:"classifier"`
	Normalizer NormalizerKind `json:"normalizer"`
	Balancer   BalancerKind   `json:"balancer"`
}

func (c Combination) String() string {
	return fmt.Sprintf("%s/%s/%s", c.Classifier, c.Normalizer, c.Balancer)
}

// Combinations expands the requested option sets into the full cartesian
// grid in (classifier, normalizer, balancer) iteration order.
func Combinations(cs []ClassifierKind, ns []NormalizerKind, bs []BalancerKind) []Combination {
	out := make([]Combination, 0, len(cs)*len(ns)*len(bs))
	for _, c := range cs {
		for _, n := range ns {
			for _, b := range bs {
				out = append(out, Combination{Classifier: c, Normalizer: n, Balancer: b})
			}
		}
	}
	return out
}

// Dataset is an in-memory numeric table. Columns keeps header order and
// includes the label column; every row has exactly len(Columns) values.
// Label values are 0 (clean) or 1 (failure-prone).
type Dataset struct {
	Columns []string
	Rows    [][]float64
	Label   string
}

func (d Dataset) NumRows() int { return len(d.Rows) }

// LabelIndex returns the position of the label column, or -1 when absent.
func (d Dataset) LabelIndex() int {
	for i, c := range d.Columns {
		if c == d.Label {
			return i
		}
	}
	return -1
}

// FeatureColumns returns the column names minus the label, preserving
// header order. This order is the feature schema used everywhere
// downstream, including persisted artifacts.
func (d Dataset) FeatureColumns() []string {
	out := make([]string, 0, len(d.Columns))
	for _, c := range d.Columns {
		if c != d.Label {
			out = append(out, c)
		}
	}
	return out
}

// FeatureRow is a single prediction instance keyed by feature name.
type FeatureRow map[string]float64

// ScaleParams are fitted normalizer parameters. They are persisted next
// to the classifier and reapplied unchanged at prediction time.
type ScaleParams struct {
	Kind NormalizerKind `json:"kind"`
	Min  []float64      `json:"min,omitempty"`
	Max  []float64      `json:"max,omitempty"`
	Mean []float64      `json:"mean,omitempty"`
	Std  []float64      `json:"std,omitempty"`
}

// FailedScore marks a candidate whose fit or scoring failed. Valid
// F-measure values live in [0,1], so a failed candidate never wins.
const FailedScore = -1.0

// Threshold converts a positive-class probability into a verdict.
const Threshold = 0.5

// Candidate is one evaluated point of the search grid.
type Candidate struct {
	Combo   Combination
	Model   Classifier
	Scale   *ScaleParams
	Score   float64
	FitErr  string // non-empty when training this combination failed
	Elapsed time.Duration
}

func (c Candidate) Failed() bool { return c.FitErr != "" }

// SelectedModel is the winning candidate plus everything needed to score
// unseen rows: the ordered feature schema and the fitted scale parameters.
type SelectedModel struct {
	RunID     string
	Features  []string
	Combo     Combination
	Model     Classifier
	Scale     *ScaleParams
	Score     float64
	Seed      int64
	TrainedAt time.Time
}

// Vector checks a row against the feature schema and lays its values out
// in schema order. The key set must match exactly; missing and extra
// names are reported sorted.
func (m *SelectedModel) Vector(row FeatureRow) ([]float64, error) {
	var missing []string
	vec := make([]float64, len(m.Features))
	for i, name := range m.Features {
		v, ok := row[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		vec[i] = v
	}
	var extra []string
	if len(row) != len(m.Features)-len(missing) {
		known := make(map[string]struct{}, len(m.Features))
		for _, name := range m.Features {
			known[name] = struct{}{}
		}
		for name := range row {
			if _, ok := known[name]; !ok {
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
	}
	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(missing)
		return nil, &SchemaMismatchError{Missing: missing, Extra: extra}
	}
	return vec, nil
}

// Prediction is the verdict for one script.
type Prediction struct {
	FailureProne bool    `json:"failure_prone"`
	Probability  float64 `json:"probability"`
}
