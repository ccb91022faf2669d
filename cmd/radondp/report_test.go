package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendReportCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), reportFileName)

	err := appendReport(path, reportEntry{File: "deploy.yml", FailureProne: true, AnalyzedAt: "2026-08-21"})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []reportEntry
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "deploy.yml", entries[0].File)
	assert.True(t, entries[0].FailureProne)
	assert.Equal(t, "2026-08-21", entries[0].AnalyzedAt)
}

func TestAppendReportKeepsExistingEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), reportFileName)

	require.NoError(t, appendReport(path, reportEntry{File: "a.yml", FailureProne: true, AnalyzedAt: "2026-08-20"}))
	require.NoError(t, appendReport(path, reportEntry{File: "b.yml", FailureProne: false, AnalyzedAt: "2026-08-21"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []reportEntry
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "a.yml", entries[0].File)
	assert.Equal(t, "b.yml", entries[1].File)
	assert.False(t, entries[1].FailureProne)
}

func TestAppendReportRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), reportFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	err := appendReport(path, reportEntry{File: "a.yml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse existing report")
}
