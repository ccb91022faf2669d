// Package dataset loads labeled metric tables and produces the splits
// the training pipeline consumes.
package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

// LoadCSV reads a metric table from path. The first record is the
// header; every other record must parse as float64 in every column.
// The label column must exist and hold only 0 or 1.
func LoadCSV(path, label string) (core.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds, err := ReadCSV(bufio.NewReader(f), label)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return ds, nil
}

// ReadCSV parses CSV content from r. See LoadCSV for the format rules.
func ReadCSV(r io.Reader, label string) (core.Dataset, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return core.Dataset{}, &core.SchemaError{Reason: "empty file"}
	}
	if err != nil {
		return core.Dataset{}, fmt.Errorf("read header: %w", err)
	}

	seen := make(map[string]struct{}, len(header))
	for _, c := range header {
		if c == "" {
			return core.Dataset{}, &core.SchemaError{Reason: "empty column name in header"}
		}
		if _, dup := seen[c]; dup {
			return core.Dataset{}, &core.SchemaError{Column: c, Reason: "duplicate column"}
		}
		seen[c] = struct{}{}
	}

	ds := core.Dataset{Columns: header, Label: label}
	labelIdx := ds.LabelIndex()
	if labelIdx < 0 {
		return core.Dataset{}, &core.SchemaError{Column: label, Reason: "label column not found"}
	}

	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return core.Dataset{}, fmt.Errorf("record %d: %w", line, err)
		}
		row := make([]float64, len(rec))
		for i, s := range rec {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return core.Dataset{}, &core.SchemaError{
					Column: header[i],
					Reason: fmt.Sprintf("record %d: %q is not numeric", line, s),
				}
			}
			row[i] = v
		}
		if v := row[labelIdx]; v != 0 && v != 1 {
			return core.Dataset{}, &core.SchemaError{
				Column: label,
				Reason: fmt.Sprintf("record %d: label %v is not 0 or 1", line, v),
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}
