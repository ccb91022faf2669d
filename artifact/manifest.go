// Package artifact defines the on-disk metadata that travels with a
// serialized model. The manifest pins the feature schema and the
// preprocessing parameters a predictor must replay, plus a checksum
// binding it to one exact model blob.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

// Artifact file names inside a model directory.
const (
	ModelFileName    = "model.gob"
	ManifestFileName = "model_features.json"
)

// Manifest is the sidecar metadata for one persisted model.
type Manifest struct {
	RunID      string            `json:"run_id"`
	Features   []string          `json:"features"`
	Classifier string            `json:"classifier"`
	Normalizer string            `json:"normalizer"`
	Balancer   string            `json:"balancer"`
	Scale      *core.ScaleParams `json:"scale,omitempty"`
	Score      float64           `json:"score"`
	Seed       int64             `json:"seed"`
	SHA256     string            `json:"sha256"`
	TrainedAt  time.Time         `json:"trained_at"`
}

// NewManifest builds the manifest for a selected model and the gob
// bytes of its classifier.
func NewManifest(m *core.SelectedModel, modelBytes []byte) *Manifest {
	return &Manifest{
		RunID:      m.RunID,
		Features:   m.Features,
		Classifier: string(m.Combo.Classifier),
		Normalizer: string(m.Combo.Normalizer),
		Balancer:   string(m.Combo.Balancer),
		Scale:      m.Scale,
		Score:      m.Score,
		Seed:       m.Seed,
		SHA256:     Checksum(modelBytes),
		TrainedAt:  m.TrainedAt,
	}
}

// Checksum returns the hex SHA-256 of a model blob.
func Checksum(modelBytes []byte) string {
	hash := sha256.Sum256(modelBytes)
	return hex.EncodeToString(hash[:])
}

// Combo parses the manifest's pipeline kinds.
func (m *Manifest) Combo() (core.Combination, error) {
	c, err := core.ParseClassifier(m.Classifier)
	if err != nil {
		return core.Combination{}, err
	}
	n, err := core.ParseNormalizer(m.Normalizer)
	if err != nil {
		return core.Combination{}, err
	}
	b, err := core.ParseBalancer(m.Balancer)
	if err != nil {
		return core.Combination{}, err
	}
	return core.Combination{Classifier: c, Normalizer: n, Balancer: b}, nil
}

// Validate checks that the manifest carries everything a predictor
// needs.
func (m *Manifest) Validate() error {
	if m.RunID == "" {
		return fmt.Errorf("manifest run_id is required")
	}
	if len(m.Features) == 0 {
		return fmt.Errorf("manifest features are required")
	}
	seen := make(map[string]struct{}, len(m.Features))
	for _, f := range m.Features {
		if f == "" {
			return fmt.Errorf("manifest feature name is empty")
		}
		if _, ok := seen[f]; ok {
			return fmt.Errorf("manifest feature %q is duplicated", f)
		}
		seen[f] = struct{}{}
	}
	if _, err := m.Combo(); err != nil {
		return err
	}
	if m.SHA256 == "" {
		return fmt.Errorf("manifest sha256 is required")
	}
	return nil
}

// Verify checks the model blob against the manifest checksum.
func (m *Manifest) Verify(path string, modelBytes []byte) error {
	if got := Checksum(modelBytes); got != m.SHA256 {
		return &core.CorruptArtifactError{
			Path:   path,
			Reason: fmt.Sprintf("checksum mismatch: manifest %s, blob %s", m.SHA256, got),
		}
	}
	return nil
}

// ToJSON renders the manifest for the sidecar file.
func (m *Manifest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// FromJSON parses a sidecar file.
func FromJSON(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
