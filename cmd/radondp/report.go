package main

import (
	"encoding/json"
	"fmt"
	"os"
)

const reportFileName = "prediction_report.json"

type reportEntry struct {
	File         string `json:"file"`
	FailureProne bool   `json:"failure_prone"`
	AnalyzedAt   string `json:"analyzed_at"`
}

// appendReport adds an entry to the JSON array at path, creating the
// file on first use.
func appendReport(path string, entry reportEntry) error {
	var entries []reportEntry
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &entries); err != nil {
			return fmt.Errorf("parse existing report %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("read report %s: %w", path, err)
	}

	entries = append(entries, entry)
	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}
