// Package testkit provides deterministic fixtures for pipeline tests.
package testkit

import (
	"encoding/csv"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/radon-h2020/radon-defect-predictor/classifier"
	"github.com/radon-h2020/radon-defect-predictor/core"
	"github.com/radon-h2020/radon-defect-predictor/dataset"
	"github.com/radon-h2020/radon-defect-predictor/normalize"
)

// Columns of every fixture dataset, label last.
var Columns = []string{"lines_code", "num_conditions", "num_tasks", "failure_prone"}

// Label is the fixture label column.
const Label = "failure_prone"

// SeparableDataset builds a labeled metric table with neg clean rows
// and pos failure-prone rows. The classes occupy well-separated value
// ranges, so every classifier family can fit it. Same arguments, same
// rows.
func SeparableDataset(neg, pos int) core.Dataset {
	ds := core.Dataset{Columns: Columns, Label: Label}
	for i := 0; i < neg; i++ {
		ds.Rows = append(ds.Rows, []float64{
			float64(10 + i%20),
			float64(i % 3),
			float64(2 + i%4),
			0,
		})
	}
	for i := 0; i < pos; i++ {
		ds.Rows = append(ds.Rows, []float64{
			float64(200 + i%40),
			float64(8 + i%5),
			float64(12 + i%6),
			1,
		})
	}
	return ds
}

// NonFiniteDataset builds a table whose feature values are NaN. Labels
// are fine, so it survives loading and partitioning, but every
// classifier fit rejects it. Useful to force a run where no candidate
// is viable.
func NonFiniteDataset(neg, pos int) core.Dataset {
	ds := core.Dataset{Columns: Columns, Label: Label}
	for i := 0; i < neg+pos; i++ {
		label := 0.0
		if i >= neg {
			label = 1.0
		}
		ds.Rows = append(ds.Rows, []float64{math.NaN(), math.NaN(), math.NaN(), label})
	}
	return ds
}

// WriteCSV writes ds to path in the format LoadCSV reads back.
func WriteCSV(path string, ds core.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(ds.Columns); err != nil {
		return err
	}
	record := make([]string, len(ds.Columns))
	for _, row := range ds.Rows {
		for i, v := range row {
			record[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// TrainedModel fits a decision tree on the separable fixture and wraps
// it as a selected model, for store and predictor tests.
func TrainedModel() (*core.SelectedModel, error) {
	ds := SeparableDataset(30, 20)
	X, y, err := dataset.Split(ds)
	if err != nil {
		return nil, err
	}
	norm, err := normalize.New(core.NormMinMax)
	if err != nil {
		return nil, err
	}
	params, err := norm.Fit(X)
	if err != nil {
		return nil, err
	}
	model, err := classifier.New(core.ClassifierDT, 1)
	if err != nil {
		return nil, err
	}
	if err := model.Fit(normalize.Apply(params, X), y); err != nil {
		return nil, err
	}
	return &core.SelectedModel{
		RunID:    "run-fixture",
		Features: ds.FeatureColumns(),
		Combo: core.Combination{
			Classifier: core.ClassifierDT,
			Normalizer: core.NormMinMax,
			Balancer:   core.BalanceNone,
		},
		Model:     model,
		Scale:     params,
		Score:     1,
		Seed:      1,
		TrainedAt: time.Unix(1700000000, 0).UTC(),
	}, nil
}
