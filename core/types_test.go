package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKinds(t *testing.T) {
	b, err := ParseBalancer("rus")
	require.NoError(t, err)
	require.Equal(t, BalanceRUS, b)

	n, err := ParseNormalizer("minmax")
	require.NoError(t, err)
	require.Equal(t, NormMinMax, n)

	c, err := ParseClassifier("svm")
	require.NoError(t, err)
	require.Equal(t, ClassifierSVM, c)

	_, err = ParseBalancer("smote")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smote")

	_, err = ParseNormalizer("robust")
	require.Error(t, err)

	_, err = ParseClassifier("xgb")
	require.Error(t, err)
}

func TestCombinationsGridOrder(t *testing.T) {
	got := Combinations(
		[]ClassifierKind{ClassifierDT, ClassifierLogit},
		[]NormalizerKind{NormMinMax},
		[]BalancerKind{BalanceNone, BalanceRUS},
	)
	require.Len(t, got, 4)

	want := []Combination{
		{Classifier: ClassifierDT, Normalizer: NormMinMax, Balancer: BalanceNone},
		{Classifier: ClassifierDT, Normalizer: NormMinMax, Balancer: BalanceRUS},
		{Classifier: ClassifierLogit, Normalizer: NormMinMax, Balancer: BalanceNone},
		{Classifier: ClassifierLogit, Normalizer: NormMinMax, Balancer: BalanceRUS},
	}
	require.Equal(t, want, got)
	assert.Equal(t, "dt/minmax/none", got[0].String())
}

func TestDatasetFeatureColumns(t *testing.T) {
	ds := Dataset{
		Columns: []string{"lines_code", "num_tasks", "failure_prone"},
		Rows:    [][]float64{{10, 2, 0}, {80, 9, 1}},
		Label:   "failure_prone",
	}
	require.Equal(t, 2, ds.LabelIndex())
	require.Equal(t, []string{"lines_code", "num_tasks"}, ds.FeatureColumns())

	ds.Label = "missing"
	assert.Equal(t, -1, ds.LabelIndex())
}

func TestVectorSchemaCheck(t *testing.T) {
	m := &SelectedModel{Features: []string{"a", "b", "c"}}

	t.Run("exact match", func(t *testing.T) {
		vec, err := m.Vector(FeatureRow{"b": 2, "a": 1, "c": 3})
		require.NoError(t, err)
		require.Equal(t, []float64{1, 2, 3}, vec)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := m.Vector(FeatureRow{"a": 1, "c": 3})
		require.Error(t, err)
		var sm *SchemaMismatchError
		require.ErrorAs(t, err, &sm)
		require.ErrorIs(t, err, ErrSchemaMismatch)
		assert.Equal(t, []string{"b"}, sm.Missing)
		assert.Empty(t, sm.Extra)
	})

	t.Run("extra key", func(t *testing.T) {
		_, err := m.Vector(FeatureRow{"a": 1, "b": 2, "c": 3, "z": 9})
		var sm *SchemaMismatchError
		require.ErrorAs(t, err, &sm)
		assert.Empty(t, sm.Missing)
		assert.Equal(t, []string{"z"}, sm.Extra)
	})

	t.Run("missing and extra", func(t *testing.T) {
		_, err := m.Vector(FeatureRow{"a": 1, "y": 0, "z": 9})
		var sm *SchemaMismatchError
		require.ErrorAs(t, err, &sm)
		assert.Equal(t, []string{"b", "c"}, sm.Missing)
		assert.Equal(t, []string{"y", "z"}, sm.Extra)
	})
}

func TestScaleParamsJSONRoundTrip(t *testing.T) {
	p := ScaleParams{
		Kind: NormMinMax,
		Min:  []float64{0, 1.5},
		Max:  []float64{10, 3.5},
	}

	b, err := json.Marshal(p)
	require.NoError(t, err)

	var got ScaleParams
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, p, got)
}
