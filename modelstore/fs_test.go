package modelstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radon-h2020/radon-defect-predictor/artifact"
	"github.com/radon-h2020/radon-defect-predictor/core"
	"github.com/radon-h2020/radon-defect-predictor/normalize"
	"github.com/radon-h2020/radon-defect-predictor/testkit"
)

func savedStore(t *testing.T) (*FSStore, *core.SelectedModel) {
	t.Helper()
	store := NewFS(t.TempDir(), nil, nil)
	model, err := testkit.TrainedModel()
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), model))
	return store, model
}

func TestFSSaveLoadRoundTrip(t *testing.T) {
	store, model := savedStore(t)

	for _, name := range []string{artifact.ModelFileName, artifact.ManifestFileName} {
		_, err := os.Stat(filepath.Join(store.Dir(), name))
		assert.NoError(t, err, name)
	}
	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 2, "temp files must not survive a save")

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunID, loaded.RunID)
	assert.Equal(t, model.Features, loaded.Features)
	assert.Equal(t, model.Combo, loaded.Combo)
	assert.Equal(t, model.Score, loaded.Score)
	assert.Equal(t, model.Seed, loaded.Seed)
	assert.Equal(t, model.Scale, loaded.Scale)
	assert.True(t, model.TrainedAt.Equal(loaded.TrainedAt))

	// The restored classifier must score exactly like the original.
	probe := [][]float64{
		{12, 1, 3},
		{220, 10, 14},
		{25, 2, 5},
	}
	scaled := normalize.Apply(model.Scale, probe)
	want, err := model.Model.PredictProba(scaled)
	require.NoError(t, err)
	got, err := loaded.Model.PredictProba(scaled)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFSLoadMissing(t *testing.T) {
	store := NewFS(t.TempDir(), nil, nil)
	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrIO)
	assert.NotErrorIs(t, err, core.ErrCorruptArtifact)
}

func TestFSLoadTamperedBlob(t *testing.T) {
	store, _ := savedStore(t)
	path := filepath.Join(store.Dir(), artifact.ModelFileName)
	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, blob, 0o644))

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCorruptArtifact)
	var corrupt *core.CorruptArtifactError
	require.ErrorAs(t, err, &corrupt)
	assert.Contains(t, corrupt.Reason, "checksum mismatch")
}

func TestFSLoadBrokenManifest(t *testing.T) {
	store, _ := savedStore(t)
	path := filepath.Join(store.Dir(), artifact.ManifestFileName)
	require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o644))

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, core.ErrCorruptArtifact)
}

func TestFSLoadMissingBlob(t *testing.T) {
	store, _ := savedStore(t)
	require.NoError(t, os.Remove(filepath.Join(store.Dir(), artifact.ModelFileName)))

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCorruptArtifact)
	var corrupt *core.CorruptArtifactError
	require.ErrorAs(t, err, &corrupt)
	assert.Contains(t, corrupt.Reason, "model blob is missing")
}

func TestFSLoadFeatureWidthMismatch(t *testing.T) {
	store, model := savedStore(t)

	// Rewrite the manifest pair with one extra feature column; the
	// checksum still matches, so only the width check can catch it.
	blob, err := model.Model.MarshalBinary()
	require.NoError(t, err)
	wide := *model
	wide.Features = append(append([]string(nil), model.Features...), "num_files")
	wide.Scale = nil
	manifest := artifact.NewManifest(&wide, blob)
	data, err := manifest.ToJSON()
	require.NoError(t, err)
	path := filepath.Join(store.Dir(), artifact.ManifestFileName)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCorruptArtifact)
	var corrupt *core.CorruptArtifactError
	require.ErrorAs(t, err, &corrupt)
	assert.Contains(t, corrupt.Reason, "4-feature schema")
}

func TestFSLoadScaleWidthMismatch(t *testing.T) {
	store, model := savedStore(t)

	blob, err := model.Model.MarshalBinary()
	require.NoError(t, err)
	bad := *model
	bad.Scale = &core.ScaleParams{Kind: core.NormMinMax, Min: []float64{0}, Max: []float64{1}}
	manifest := artifact.NewManifest(&bad, blob)
	data, err := manifest.ToJSON()
	require.NoError(t, err)
	path := filepath.Join(store.Dir(), artifact.ManifestFileName)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCorruptArtifact)
	var corrupt *core.CorruptArtifactError
	require.ErrorAs(t, err, &corrupt)
	assert.Contains(t, corrupt.Reason, "scale parameters")
}

func TestFSLoadUnknownClassifierKind(t *testing.T) {
	store, model := savedStore(t)

	blob, err := model.Model.MarshalBinary()
	require.NoError(t, err)
	manifest := artifact.NewManifest(model, blob)
	manifest.Classifier = "xgboost"
	data, err := manifest.ToJSON()
	require.NoError(t, err)
	path := filepath.Join(store.Dir(), artifact.ManifestFileName)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, core.ErrCorruptArtifact)
}

func TestFSCanceledContext(t *testing.T) {
	store, model := savedStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Save(ctx, model), context.Canceled)
	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemory()

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, core.ErrIO)

	model, err := testkit.TrainedModel()
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), model))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, model, loaded)
}
