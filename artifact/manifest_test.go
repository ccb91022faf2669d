package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radon-h2020/radon-defect-predictor/core"
	"github.com/radon-h2020/radon-defect-predictor/testkit"
)

func fixtureManifest(t *testing.T) (*Manifest, []byte) {
	t.Helper()
	model, err := testkit.TrainedModel()
	require.NoError(t, err)
	blob, err := model.Model.MarshalBinary()
	require.NoError(t, err)
	return NewManifest(model, blob), blob
}

func TestNewManifest(t *testing.T) {
	m, blob := fixtureManifest(t)

	require.NoError(t, m.Validate())
	assert.Equal(t, "run-fixture", m.RunID)
	assert.Equal(t, []string{"lines_code", "num_conditions", "num_tasks"}, m.Features)
	assert.Equal(t, "dt", m.Classifier)
	assert.Equal(t, "minmax", m.Normalizer)
	assert.Equal(t, "none", m.Balancer)
	assert.Equal(t, Checksum(blob), m.SHA256)
	assert.Len(t, m.SHA256, 64)
	require.NotNil(t, m.Scale)
	assert.Equal(t, core.NormMinMax, m.Scale.Kind)

	combo, err := m.Combo()
	require.NoError(t, err)
	assert.Equal(t, "dt/minmax/none", combo.String())
}

func TestManifestJSONRoundTrip(t *testing.T) {
	m, _ := fixtureManifest(t)

	data, err := m.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id"`)
	assert.Contains(t, string(data), `"sha256"`)

	back, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, back.RunID)
	assert.Equal(t, m.Features, back.Features)
	assert.Equal(t, m.Scale, back.Scale)
	assert.Equal(t, m.SHA256, back.SHA256)
	assert.True(t, m.TrainedAt.Equal(back.TrainedAt))
	require.NoError(t, back.Validate())

	_, err = FromJSON([]byte("{broken"))
	assert.Error(t, err)
}

func TestManifestVerify(t *testing.T) {
	m, blob := fixtureManifest(t)

	require.NoError(t, m.Verify("models/model.gob", blob))

	tampered := append([]byte{}, blob...)
	tampered[0] ^= 0xff
	err := m.Verify("models/model.gob", tampered)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrCorruptArtifact)
	var corrupt *core.CorruptArtifactError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, "models/model.gob", corrupt.Path)
	assert.Contains(t, corrupt.Reason, "checksum mismatch")
}

func TestManifestValidate(t *testing.T) {
	valid, _ := fixtureManifest(t)

	for _, tc := range []struct {
		name   string
		mutate func(m *Manifest)
	}{
		{"missing run id", func(m *Manifest) { m.RunID = "" }},
		{"no features", func(m *Manifest) { m.Features = nil }},
		{"empty feature name", func(m *Manifest) { m.Features = []string{"a", ""} }},
		{"duplicate feature", func(m *Manifest) { m.Features = []string{"a", "a"} }},
		{"unknown classifier", func(m *Manifest) { m.Classifier = "xgboost" }},
		{"unknown normalizer", func(m *Manifest) { m.Normalizer = "robust" }},
		{"unknown balancer", func(m *Manifest) { m.Balancer = "smote" }},
		{"missing checksum", func(m *Manifest) { m.SHA256 = "" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := *valid
			tc.mutate(&m)
			assert.Error(t, m.Validate())
		})
	}
}
