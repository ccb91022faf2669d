// Package predict scores unseen feature rows with a persisted model.
// The predictor replays the exact preprocessing the model was trained
// with and never refits anything.
package predict

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/radon-h2020/radon-defect-predictor/core"
	"github.com/radon-h2020/radon-defect-predictor/normalize"
	"github.com/radon-h2020/radon-defect-predictor/pkg/metrics"
)

// Predictor wraps one loaded model. Safe for concurrent use; the model
// is read-only after construction.
type Predictor struct {
	model   *core.SelectedModel
	logger  *zap.Logger
	metrics *metrics.PipelineMetrics
}

// New validates the loaded model and builds a predictor. logger and
// metrics may be nil.
func New(model *core.SelectedModel, logger *zap.Logger, m *metrics.PipelineMetrics) (*Predictor, error) {
	if model == nil || model.Model == nil {
		return nil, fmt.Errorf("predictor needs a loaded model")
	}
	if len(model.Features) == 0 {
		return nil, fmt.Errorf("predictor needs a feature schema")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predictor{
		model:   model,
		logger:  logger.With(zap.String("component", "predictor"), zap.String("run_id", model.RunID)),
		metrics: m,
	}, nil
}

// Predict scores one row. The row's key set must equal the persisted
// feature schema exactly; any difference reports a schema mismatch
// before the model is consulted.
func (p *Predictor) Predict(row core.FeatureRow) (core.Prediction, error) {
	vec, err := p.model.Vector(row)
	if err != nil {
		return core.Prediction{}, err
	}
	scaled := normalize.ApplyRow(p.model.Scale, vec)
	probs, err := p.model.Model.PredictProba([][]float64{scaled})
	if err != nil {
		return core.Prediction{}, fmt.Errorf("score row: %w", err)
	}
	prob := probs[0]
	failureProne := prob >= core.Threshold

	p.metrics.RecordPrediction(failureProne)
	p.logger.Debug("row scored",
		zap.Float64("probability", prob),
		zap.Bool("failure_prone", failureProne))
	return core.Prediction{FailureProne: failureProne, Probability: prob}, nil
}

// PredictBatch scores rows in order and stops at the first failing
// row.
func (p *Predictor) PredictBatch(rows []core.FeatureRow) ([]core.Prediction, error) {
	out := make([]core.Prediction, len(rows))
	for i, row := range rows {
		pred, err := p.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = pred
	}
	return out, nil
}
