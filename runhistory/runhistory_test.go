package runhistory

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

var historyBase = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemory(),
	}
}

func sampleRun(id string, startedAt time.Time, best string, score float64) RunRecord {
	return RunRecord{
		RunID:            id,
		StartedAt:        startedAt,
		Duration:         1500 * time.Millisecond,
		DatasetPath:      "metrics.csv",
		DatasetSHA256:    "deadbeef",
		DatasetRows:      100,
		Seed:             42,
		ValidationRatio:  0.25,
		Classifiers:      "dt rf",
		Normalizers:      "minmax",
		Balancers:        "none",
		BestClassifier:   best,
		BestNormalizer:   "minmax",
		BestBalancer:     "none",
		BestScore:        score,
		CandidatesTotal:  2,
		CandidatesFailed: 1,
		Candidates: []CandidateRecord{
			{Classifier: best, Normalizer: "minmax", Balancer: "none", Score: score, Elapsed: 40 * time.Millisecond},
			{Classifier: "nb", Normalizer: "minmax", Balancer: "none", Score: core.FailedScore, FitError: "fit classifier: boom", Elapsed: 3 * time.Millisecond},
		},
	}
}

func seedRuns(t *testing.T, store Store) []RunRecord {
	t.Helper()
	runs := []RunRecord{
		sampleRun("run-a", historyBase, "dt", 0.90),
		sampleRun("run-b", historyBase.Add(1*time.Hour), "rf", 0.75),
		sampleRun("run-c", historyBase.Add(2*time.Hour), "dt", 0.60),
	}
	for _, r := range runs {
		require.NoError(t, store.Record(context.Background(), r))
	}
	return runs
}

func TestFromTraining(t *testing.T) {
	model := &core.SelectedModel{
		RunID: "run-77",
		Combo: core.Combination{
			Classifier: core.ClassifierDT,
			Normalizer: core.NormMinMax,
			Balancer:   core.BalanceNone,
		},
		Score:     0.875,
		Seed:      7,
		TrainedAt: historyBase,
	}
	candidates := []core.Candidate{
		{Combo: model.Combo, Score: 0.875, Elapsed: 20 * time.Millisecond},
		{
			Combo:   core.Combination{Classifier: core.ClassifierNB, Normalizer: core.NormMinMax, Balancer: core.BalanceNone},
			Score:   core.FailedScore,
			FitErr:  "fit classifier: singular variance",
			Elapsed: 2 * time.Millisecond,
		},
	}

	rec := FromTraining(model, candidates, 900*time.Millisecond)

	assert.Equal(t, "run-77", rec.RunID)
	assert.True(t, rec.StartedAt.Equal(historyBase))
	assert.Equal(t, 900*time.Millisecond, rec.Duration)
	assert.Equal(t, int64(7), rec.Seed)
	assert.Equal(t, "dt", rec.BestClassifier)
	assert.Equal(t, "minmax", rec.BestNormalizer)
	assert.Equal(t, "none", rec.BestBalancer)
	assert.Equal(t, "dt/minmax/none", rec.BestCombo())
	assert.Equal(t, 0.875, rec.BestScore)
	assert.Equal(t, 2, rec.CandidatesTotal)
	assert.Equal(t, 1, rec.CandidatesFailed)
	require.Len(t, rec.Candidates, 2)
	assert.Equal(t, "run-77", rec.Candidates[0].RunID)
	assert.Equal(t, "fit classifier: singular variance", rec.Candidates[1].FitError)
}

func TestFromTrainingNoViableModel(t *testing.T) {
	candidates := []core.Candidate{
		{
			Combo:  core.Combination{Classifier: core.ClassifierDT, Normalizer: core.NormNone, Balancer: core.BalanceNone},
			Score:  core.FailedScore,
			FitErr: "fit classifier: non-finite feature",
		},
	}

	rec := FromTraining(nil, candidates, time.Second)

	assert.Empty(t, rec.RunID)
	assert.Equal(t, core.FailedScore, rec.BestScore)
	assert.Equal(t, 1, rec.CandidatesTotal)
	assert.Equal(t, 1, rec.CandidatesFailed)
}

func TestStoreRecordAndGet(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			in := sampleRun("run-1", historyBase, "dt", 0.9)
			require.NoError(t, store.Record(context.Background(), in))

			got, err := store.Get(context.Background(), "run-1")
			require.NoError(t, err)

			assert.Equal(t, "run-1", got.RunID)
			assert.WithinDuration(t, historyBase, got.StartedAt, time.Second)
			assert.Equal(t, 1500*time.Millisecond, got.Duration)
			assert.Equal(t, "metrics.csv", got.DatasetPath)
			assert.Equal(t, "deadbeef", got.DatasetSHA256)
			assert.Equal(t, 100, got.DatasetRows)
			assert.Equal(t, int64(42), got.Seed)
			assert.InDelta(t, 0.25, got.ValidationRatio, 1e-9)
			assert.Equal(t, "dt rf", got.Classifiers)
			assert.Equal(t, "dt/minmax/none", got.BestCombo())
			assert.Equal(t, 0.9, got.BestScore)

			require.Len(t, got.Candidates, 2)
			assert.Equal(t, "run-1", got.Candidates[0].RunID)
			assert.Equal(t, "dt", got.Candidates[0].Classifier)
			assert.Equal(t, 40*time.Millisecond, got.Candidates[0].Elapsed)
			assert.Empty(t, got.Candidates[0].FitError)
			assert.Equal(t, core.FailedScore, got.Candidates[1].Score)
			assert.Equal(t, "fit classifier: boom", got.Candidates[1].FitError)

			_, err = store.Get(context.Background(), "run-unknown")
			assert.ErrorIs(t, err, ErrRunNotFound)
		})
	}
}

func TestStoreRejectsDuplicateRunID(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Record(context.Background(), sampleRun("run-dup", historyBase, "dt", 0.9)))
			err := store.Record(context.Background(), sampleRun("run-dup", historyBase.Add(time.Hour), "rf", 0.8))
			assert.ErrorContains(t, err, "run-dup")
		})
	}
}

func TestStoreListFiltersAndOrder(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			seedRuns(t, store)
			ctx := context.Background()

			all, err := store.List(ctx, RunFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "run-c", all[0].RunID)
			assert.Equal(t, "run-b", all[1].RunID)
			assert.Equal(t, "run-a", all[2].RunID)
			for _, rec := range all {
				assert.Nil(t, rec.Candidates, "candidate rows belong to Get, not List")
			}

			byClassifier, err := store.List(ctx, RunFilter{Classifier: "dt"})
			require.NoError(t, err)
			require.Len(t, byClassifier, 2)
			assert.Equal(t, "run-c", byClassifier[0].RunID)
			assert.Equal(t, "run-a", byClassifier[1].RunID)

			minScore := 0.7
			good, err := store.List(ctx, RunFilter{MinScore: &minScore})
			require.NoError(t, err)
			require.Len(t, good, 2)
			assert.Equal(t, "run-b", good[0].RunID)
			assert.Equal(t, "run-a", good[1].RunID)

			from := historyBase.Add(30 * time.Minute)
			to := historyBase.Add(90 * time.Minute)
			window, err := store.List(ctx, RunFilter{From: &from, To: &to})
			require.NoError(t, err)
			require.Len(t, window, 1)
			assert.Equal(t, "run-b", window[0].RunID)

			page, err := store.List(ctx, RunFilter{Limit: 1, Offset: 1})
			require.NoError(t, err)
			require.Len(t, page, 1)
			assert.Equal(t, "run-b", page[0].RunID)

			byDataset, err := store.List(ctx, RunFilter{Dataset: "other.csv"})
			require.NoError(t, err)
			assert.Empty(t, byDataset)
		})
	}
}

func TestStoreSummary(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			seedRuns(t, store)

			summary, err := store.Summary(context.Background(), RunFilter{})
			require.NoError(t, err)

			assert.Equal(t, int64(3), summary.TotalRuns)
			assert.InDelta(t, 0.90, summary.BestScore, 1e-9)
			assert.InDelta(t, 0.75, summary.MeanScore, 1e-9)
			assert.Equal(t, int64(6), summary.CandidatesTotal)
			assert.Equal(t, int64(3), summary.CandidatesFailed)

			empty, err := store.Summary(context.Background(), RunFilter{Classifier: "svm"})
			require.NoError(t, err)
			assert.Zero(t, empty.TotalRuns)
		})
	}
}

func TestStoreExport(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			seedRuns(t, store)
			ctx := context.Background()

			raw, err := store.Export(ctx, RunFilter{}, ExportFormatCSV)
			require.NoError(t, err)
			lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
			require.Len(t, lines, 4)
			assert.True(t, strings.HasPrefix(lines[0], "Run ID,"))
			assert.Contains(t, lines[1], "run-c")
			assert.Contains(t, lines[1], "dt/minmax/none")

			raw, err = store.Export(ctx, RunFilter{}, ExportFormatJSON)
			require.NoError(t, err)
			var back []RunRecord
			require.NoError(t, json.Unmarshal(raw, &back))
			require.Len(t, back, 3)
			assert.Equal(t, "run-c", back[0].RunID)

			_, err = store.Export(ctx, RunFilter{}, ExportFormat("yaml"))
			assert.ErrorContains(t, err, "unsupported export format")
		})
	}
}
