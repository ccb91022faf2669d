package predict

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radon-h2020/radon-defect-predictor/core"
	"github.com/radon-h2020/radon-defect-predictor/modelstore"
	"github.com/radon-h2020/radon-defect-predictor/pkg/metrics"
	"github.com/radon-h2020/radon-defect-predictor/testkit"
	"github.com/radon-h2020/radon-defect-predictor/trainer"
)

func cleanRow() core.FeatureRow {
	return core.FeatureRow{"lines_code": 12, "num_conditions": 1, "num_tasks": 3}
}

func dirtyRow() core.FeatureRow {
	return core.FeatureRow{"lines_code": 220, "num_conditions": 10, "num_tasks": 14}
}

func fixturePredictor(t *testing.T, m *metrics.PipelineMetrics) *Predictor {
	t.Helper()
	model, err := testkit.TrainedModel()
	require.NoError(t, err)
	p, err := New(model, nil, m)
	require.NoError(t, err)
	return p
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.Error(t, err)

	_, err = New(&core.SelectedModel{}, nil, nil)
	assert.Error(t, err)

	model, err := testkit.TrainedModel()
	require.NoError(t, err)
	model.Features = nil
	_, err = New(model, nil, nil)
	assert.Error(t, err)
}

func TestPredictSeparatesClasses(t *testing.T) {
	p := fixturePredictor(t, nil)

	clean, err := p.Predict(cleanRow())
	require.NoError(t, err)
	assert.False(t, clean.FailureProne)
	assert.Less(t, clean.Probability, core.Threshold)

	dirty, err := p.Predict(dirtyRow())
	require.NoError(t, err)
	assert.True(t, dirty.FailureProne)
	assert.GreaterOrEqual(t, dirty.Probability, core.Threshold)
}

func TestPredictSchemaMismatch(t *testing.T) {
	p := fixturePredictor(t, nil)

	t.Run("missing key", func(t *testing.T) {
		row := cleanRow()
		delete(row, "num_tasks")
		_, err := p.Predict(row)
		require.ErrorIs(t, err, core.ErrSchemaMismatch)
		var mismatch *core.SchemaMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, []string{"num_tasks"}, mismatch.Missing)
		assert.Empty(t, mismatch.Extra)
	})

	t.Run("extra key", func(t *testing.T) {
		row := cleanRow()
		row["num_files"] = 4
		_, err := p.Predict(row)
		var mismatch *core.SchemaMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Empty(t, mismatch.Missing)
		assert.Equal(t, []string{"num_files"}, mismatch.Extra)
	})

	t.Run("renamed key", func(t *testing.T) {
		row := cleanRow()
		delete(row, "num_tasks")
		row["task_count"] = 3
		_, err := p.Predict(row)
		var mismatch *core.SchemaMismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, []string{"num_tasks"}, mismatch.Missing)
		assert.Equal(t, []string{"task_count"}, mismatch.Extra)
	})
}

func TestPredictBatch(t *testing.T) {
	p := fixturePredictor(t, nil)

	preds, err := p.PredictBatch([]core.FeatureRow{cleanRow(), dirtyRow()})
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.False(t, preds[0].FailureProne)
	assert.True(t, preds[1].FailureProne)

	bad := cleanRow()
	delete(bad, "lines_code")
	_, err = p.PredictBatch([]core.FeatureRow{cleanRow(), bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
	assert.ErrorIs(t, err, core.ErrSchemaMismatch)
}

func TestPredictRecordsMetrics(t *testing.T) {
	m := metrics.NewWith(prometheus.NewRegistry())
	p := fixturePredictor(t, m)

	_, err := p.Predict(cleanRow())
	require.NoError(t, err)
	_, err = p.Predict(dirtyRow())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PredictionsTotal.WithLabelValues("clean")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PredictionsTotal.WithLabelValues("failure_prone")))
}

// Full loop: train on the fixture table, persist, reload, score.
func TestTrainPersistPredict(t *testing.T) {
	tr, err := trainer.New(trainer.Options{
		Classifiers: []core.ClassifierKind{core.ClassifierDT, core.ClassifierNB},
		Normalizers: []core.NormalizerKind{core.NormStd},
		Balancers:   []core.BalancerKind{core.BalanceROS},
		Seed:        42,
	}, nil, nil)
	require.NoError(t, err)

	model, _, err := tr.Train(context.Background(), testkit.SeparableDataset(60, 40))
	require.NoError(t, err)

	store := modelstore.NewFS(t.TempDir(), nil, nil)
	require.NoError(t, store.Save(context.Background(), model))
	loaded, err := store.Load(context.Background())
	require.NoError(t, err)

	p, err := New(loaded, nil, nil)
	require.NoError(t, err)

	clean, err := p.Predict(cleanRow())
	require.NoError(t, err)
	assert.False(t, clean.FailureProne)

	dirty, err := p.Predict(dirtyRow())
	require.NoError(t, err)
	assert.True(t, dirty.FailureProne)
}
