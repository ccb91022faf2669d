// Package modelstore persists selected models. A model travels as two
// companion files, the gob-encoded classifier and a JSON feature
// manifest; the manifest checksum binds the pair together. Stores never
// publish a partial pair: both files land via temp file, fsync and
// rename, manifest last.
package modelstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/radon-h2020/radon-defect-predictor/artifact"
	"github.com/radon-h2020/radon-defect-predictor/classifier"
	"github.com/radon-h2020/radon-defect-predictor/core"
	"github.com/radon-h2020/radon-defect-predictor/pkg/metrics"
)

// FSStore keeps one model in one directory.
type FSStore struct {
	dir     string
	logger  *zap.Logger
	metrics *metrics.PipelineMetrics
}

// NewFS builds a store rooted at dir. logger and metrics may be nil.
func NewFS(dir string, logger *zap.Logger, m *metrics.PipelineMetrics) *FSStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FSStore{
		dir:     dir,
		logger:  logger.With(zap.String("component", "modelstore"), zap.String("dir", dir)),
		metrics: m,
	}
}

// Dir returns the store root.
func (s *FSStore) Dir() string { return s.dir }

// Save serializes m and publishes the artifact pair. An interrupted
// save leaves the previous pair intact.
func (s *FSStore) Save(ctx context.Context, m *core.SelectedModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	blob, err := m.Model.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serialize classifier: %w", err)
	}
	manifest := artifact.NewManifest(m, blob)
	if err := manifest.Validate(); err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}
	manifestData, err := manifest.ToJSON()
	if err != nil {
		return fmt.Errorf("serialize manifest: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create model directory %s: %w: %w", s.dir, core.ErrIO, err)
	}
	if err := writeAtomic(filepath.Join(s.dir, artifact.ModelFileName), blob); err != nil {
		return err
	}
	// The manifest lands last: its presence marks a complete pair.
	if err := writeAtomic(filepath.Join(s.dir, artifact.ManifestFileName), manifestData); err != nil {
		return err
	}

	s.logger.Info("model saved",
		zap.String("run_id", m.RunID),
		zap.String("combination", m.Combo.String()),
		zap.String("sha256", manifest.SHA256))
	return nil
}

// Load reads the artifact pair back and rebuilds the selected model.
// A missing pair reports an io failure; a pair that fails checksum,
// schema or decode checks reports a corrupt artifact.
func (s *FSStore) Load(ctx context.Context) (*core.SelectedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	manifestPath := filepath.Join(s.dir, artifact.ManifestFileName)
	modelPath := filepath.Join(s.dir, artifact.ModelFileName)

	manifestData, err := os.ReadFile(manifestPath)
	if err != nil {
		s.metrics.RecordModelLoad("fs", "failed")
		return nil, fmt.Errorf("read manifest %s: %w: %w", manifestPath, core.ErrIO, err)
	}
	manifest, err := artifact.FromJSON(manifestData)
	if err != nil {
		s.metrics.RecordModelLoad("fs", "corrupt")
		return nil, &core.CorruptArtifactError{Path: manifestPath, Reason: fmt.Sprintf("invalid manifest json: %v", err)}
	}
	if err := manifest.Validate(); err != nil {
		s.metrics.RecordModelLoad("fs", "corrupt")
		return nil, &core.CorruptArtifactError{Path: manifestPath, Reason: err.Error()}
	}

	blob, err := os.ReadFile(modelPath)
	if os.IsNotExist(err) {
		// Manifest without blob means a torn pair, not a missing model.
		s.metrics.RecordModelLoad("fs", "corrupt")
		return nil, &core.CorruptArtifactError{Path: modelPath, Reason: "model blob is missing"}
	}
	if err != nil {
		s.metrics.RecordModelLoad("fs", "failed")
		return nil, fmt.Errorf("read model %s: %w: %w", modelPath, core.ErrIO, err)
	}

	m, err := Decode(manifest, blob, modelPath)
	if err != nil {
		s.metrics.RecordModelLoad("fs", "corrupt")
		return nil, err
	}

	s.metrics.RecordModelLoad("fs", "ok")
	s.logger.Debug("model loaded",
		zap.String("run_id", m.RunID),
		zap.String("combination", m.Combo.String()))
	return m, nil
}

// Decode rebuilds a selected model from a validated manifest and the
// classifier blob it vouches for. path only labels errors.
func Decode(manifest *artifact.Manifest, blob []byte, path string) (*core.SelectedModel, error) {
	if err := manifest.Verify(path, blob); err != nil {
		return nil, err
	}
	combo, err := manifest.Combo()
	if err != nil {
		return nil, &core.CorruptArtifactError{Path: path, Reason: err.Error()}
	}
	model, err := classifier.Restore(combo.Classifier, blob)
	if err != nil {
		return nil, &core.CorruptArtifactError{Path: path, Reason: fmt.Sprintf("decode classifier: %v", err)}
	}
	// The schema and the classifier were written as a pair; a width
	// disagreement means the pair was mixed from two models.
	probe := make([]float64, len(manifest.Features))
	if _, err := model.PredictProba([][]float64{probe}); err != nil {
		return nil, &core.CorruptArtifactError{
			Path:   path,
			Reason: fmt.Sprintf("classifier does not accept the %d-feature schema: %v", len(manifest.Features), err),
		}
	}
	if p := manifest.Scale; p != nil {
		for _, cols := range [][]float64{p.Min, p.Max, p.Mean, p.Std} {
			if cols != nil && len(cols) != len(manifest.Features) {
				return nil, &core.CorruptArtifactError{
					Path:   path,
					Reason: fmt.Sprintf("scale parameters cover %d columns, schema has %d", len(cols), len(manifest.Features)),
				}
			}
		}
	}
	return &core.SelectedModel{
		RunID:     manifest.RunID,
		Features:  manifest.Features,
		Combo:     combo,
		Model:     model,
		Scale:     manifest.Scale,
		Score:     manifest.Score,
		Seed:      manifest.Seed,
		TrainedAt: manifest.TrainedAt,
	}, nil
}

// writeAtomic lands data at path through a temp file in the same
// directory, synced before the rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w: %w", path, core.ErrIO, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w: %w", path, core.ErrIO, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w: %w", path, core.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w: %w", path, core.ErrIO, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publish %s: %w: %w", path, core.ErrIO, err)
	}
	return nil
}
