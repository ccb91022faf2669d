package core

import (
	"context"
	"encoding"
)

// Balancer rebalances class frequencies on the training split. It never
// alters feature values, only row multiplicity.
type Balancer interface {
	Kind() BalancerKind
	Balance(X [][]float64, y []int, seed int64) ([][]float64, []int)
}

// Normalizer fits scale parameters on a training matrix. Applying the
// fitted parameters is a pure function of ScaleParams, so training and
// prediction share one code path.
type Normalizer interface {
	Kind() NormalizerKind
	Fit(X [][]float64) (*ScaleParams, error)
}

// Classifier is one model family with fixed default hyperparameters.
// Implementations serialize themselves for persistence.
type Classifier interface {
	Kind() ClassifierKind
	Fit(X [][]float64, y []int) error
	PredictProba(X [][]float64) ([]float64, error)
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// ModelStore persists and restores a selected model as a pair of
// companion artifacts: classifier bytes plus a feature schema manifest.
type ModelStore interface {
	Save(ctx context.Context, m *SelectedModel) error
	Load(ctx context.Context) (*SelectedModel, error)
}

// MetricExtractor turns script source into a flat metric map. The
// pipeline never extracts metrics itself; implementations live at the
// repository boundary and are picked by language.
type MetricExtractor interface {
	Language() string
	Extract(src []byte) (FeatureRow, error)
}
