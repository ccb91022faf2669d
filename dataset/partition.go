package dataset

import (
	"fmt"
	"math/rand"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

// Partition splits a dataset into train and validation parts, stratified
// on the label so both sides keep the class mix. validRatio is the
// fraction held out for validation. The same seed always produces the
// same partition.
func Partition(ds core.Dataset, validRatio float64, seed int64) (train, valid core.Dataset, err error) {
	if validRatio <= 0 || validRatio >= 1 {
		return train, valid, fmt.Errorf("validation ratio %v outside (0,1)", validRatio)
	}
	labelIdx := ds.LabelIndex()
	if labelIdx < 0 {
		return train, valid, &core.SchemaError{Column: ds.Label, Reason: "label column not found"}
	}

	var byClass [2][]int
	for i, row := range ds.Rows {
		byClass[int(row[labelIdx])] = append(byClass[int(row[labelIdx])], i)
	}
	for cls, idx := range byClass {
		if len(idx) < 2 {
			return train, valid, &core.SchemaError{
				Column: ds.Label,
				Reason: fmt.Sprintf("class %d has %d rows, need at least 2 to partition", cls, len(idx)),
			}
		}
	}

	rng := rand.New(rand.NewSource(seed))
	var trainIdx, validIdx []int
	for _, idx := range byClass {
		perm := rng.Perm(len(idx))
		nValid := int(float64(len(idx)) * validRatio)
		// Both sides keep at least one row of each class.
		if nValid == 0 {
			nValid = 1
		}
		if nValid == len(idx) {
			nValid = len(idx) - 1
		}
		for i, p := range perm {
			if i < nValid {
				validIdx = append(validIdx, idx[p])
			} else {
				trainIdx = append(trainIdx, idx[p])
			}
		}
	}
	// Interleave the classes again so fitters never see rows grouped by label.
	rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	rng.Shuffle(len(validIdx), func(i, j int) { validIdx[i], validIdx[j] = validIdx[j], validIdx[i] })

	return subset(ds, trainIdx), subset(ds, validIdx), nil
}

func subset(ds core.Dataset, idx []int) core.Dataset {
	out := core.Dataset{Columns: ds.Columns, Label: ds.Label, Rows: make([][]float64, len(idx))}
	for i, j := range idx {
		out.Rows[i] = ds.Rows[j]
	}
	return out
}
