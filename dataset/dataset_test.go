package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

const sampleCSV = `lines_code,num_tasks,failure_prone
10,2,0
80,9,1
33,4,0
57,7,1
`

func TestReadCSV(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(sampleCSV), "failure_prone")
	require.NoError(t, err)

	require.Equal(t, []string{"lines_code", "num_tasks", "failure_prone"}, ds.Columns)
	require.Equal(t, 4, ds.NumRows())
	assert.Equal(t, []float64{10, 2, 0}, ds.Rows[0])
	assert.Equal(t, []float64{57, 7, 1}, ds.Rows[3])
	assert.Equal(t, []string{"lines_code", "num_tasks"}, ds.FeatureColumns())
}

func TestReadCSVSchemaViolations(t *testing.T) {
	tests := []struct {
		name  string
		csv   string
		label string
	}{
		{"empty file", "", "failure_prone"},
		{"label column absent", "a,b\n1,2\n", "failure_prone"},
		{"duplicate column", "a,a,failure_prone\n1,2,0\n", "failure_prone"},
		{"empty column name", "a,,failure_prone\n1,2,0\n", "failure_prone"},
		{"non numeric cell", "a,failure_prone\nNaN?,0\n", "failure_prone"},
		{"label not binary", "a,failure_prone\n1,2\n", "failure_prone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.csv), tt.label)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrSchema)
		})
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	ds, err := LoadCSV(path, "failure_prone")
	require.NoError(t, err)
	require.Equal(t, 4, ds.NumRows())

	_, err = LoadCSV(filepath.Join(t.TempDir(), "absent.csv"), "failure_prone")
	require.Error(t, err)
}

func TestSplit(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(sampleCSV), "failure_prone")
	require.NoError(t, err)

	X, y, err := Split(ds)
	require.NoError(t, err)
	require.Len(t, X, 4)
	require.Len(t, y, 4)
	assert.Equal(t, []float64{10, 2}, X[0])
	assert.Equal(t, []int{0, 1, 0, 1}, y)
}

func TestSplitMissingLabel(t *testing.T) {
	ds := core.Dataset{Columns: []string{"a", "b"}, Rows: [][]float64{{1, 2}}, Label: "failure_prone"}
	_, _, err := Split(ds)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSchema)
}

func makeDataset(t *testing.T, neg, pos int) core.Dataset {
	t.Helper()
	ds := core.Dataset{Columns: []string{"m1", "m2", "failure_prone"}, Label: "failure_prone"}
	for i := 0; i < neg; i++ {
		ds.Rows = append(ds.Rows, []float64{float64(i), float64(i % 7), 0})
	}
	for i := 0; i < pos; i++ {
		ds.Rows = append(ds.Rows, []float64{float64(100 + i), float64(i % 5), 1})
	}
	return ds
}

func countLabels(ds core.Dataset) (neg, pos int) {
	idx := ds.LabelIndex()
	for _, row := range ds.Rows {
		if row[idx] == 1 {
			pos++
		} else {
			neg++
		}
	}
	return neg, pos
}

func TestPartitionStratified(t *testing.T) {
	ds := makeDataset(t, 60, 40)

	train, valid, err := Partition(ds, 0.25, 42)
	require.NoError(t, err)
	require.Equal(t, 100, train.NumRows()+valid.NumRows())

	trainNeg, trainPos := countLabels(train)
	validNeg, validPos := countLabels(valid)
	assert.Equal(t, 15, validNeg)
	assert.Equal(t, 10, validPos)
	assert.Equal(t, 45, trainNeg)
	assert.Equal(t, 30, trainPos)
}

func TestPartitionDeterministic(t *testing.T) {
	ds := makeDataset(t, 30, 20)

	t1, v1, err := Partition(ds, 0.25, 7)
	require.NoError(t, err)
	t2, v2, err := Partition(ds, 0.25, 7)
	require.NoError(t, err)
	require.Equal(t, t1.Rows, t2.Rows)
	require.Equal(t, v1.Rows, v2.Rows)

	_, v3, err := Partition(ds, 0.25, 8)
	require.NoError(t, err)
	assert.NotEqual(t, v1.Rows, v3.Rows)
}

func TestPartitionKeepsBothClasses(t *testing.T) {
	// 3+3 rows at a small ratio: every side still keeps one of each class.
	ds := makeDataset(t, 3, 3)
	train, valid, err := Partition(ds, 0.1, 1)
	require.NoError(t, err)

	trainNeg, trainPos := countLabels(train)
	validNeg, validPos := countLabels(valid)
	assert.GreaterOrEqual(t, trainNeg, 1)
	assert.GreaterOrEqual(t, trainPos, 1)
	assert.Equal(t, 1, validNeg)
	assert.Equal(t, 1, validPos)
}

func TestPartitionErrors(t *testing.T) {
	ds := makeDataset(t, 10, 1)
	_, _, err := Partition(ds, 0.25, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSchema)

	ds = makeDataset(t, 10, 10)
	_, _, err = Partition(ds, 0, 1)
	require.Error(t, err)
	_, _, err = Partition(ds, 1, 1)
	require.Error(t, err)
}
