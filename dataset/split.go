package dataset

import (
	"github.com/radon-h2020/radon-defect-predictor/core"
)

// Split separates a dataset into its feature matrix and label vector.
// Row order and count are preserved; the feature column order matches
// ds.FeatureColumns.
func Split(ds core.Dataset) (X [][]float64, y []int, err error) {
	labelIdx := ds.LabelIndex()
	if labelIdx < 0 {
		return nil, nil, &core.SchemaError{Column: ds.Label, Reason: "label column not found"}
	}

	X = make([][]float64, len(ds.Rows))
	y = make([]int, len(ds.Rows))
	for i, row := range ds.Rows {
		features := make([]float64, 0, len(row)-1)
		for j, v := range row {
			if j == labelIdx {
				continue
			}
			features = append(features, v)
		}
		X[i] = features
		y[i] = int(row[labelIdx])
	}
	return X, y, nil
}
