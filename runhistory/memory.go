package runhistory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore implements an in-memory run log. It is a drop-in for the
// SQLite store in tests and in runs that should leave nothing behind.
type MemoryStore struct {
	records []RunRecord
	mu      sync.RWMutex
}

// NewMemory creates a new in-memory run log.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		records: make([]RunRecord, 0),
	}
}

// Record inserts one run and its candidate rows.
func (m *MemoryStore) Record(ctx context.Context, rec RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.records {
		if existing.RunID == rec.RunID {
			return fmt.Errorf("insert run %s: run id already recorded", rec.RunID)
		}
	}

	rec.ID = int64(len(m.records) + 1)
	rec.Candidates = append([]CandidateRecord(nil), rec.Candidates...)
	for i := range rec.Candidates {
		rec.Candidates[i].ID = int64(i + 1)
		rec.Candidates[i].RunID = rec.RunID
	}

	m.records = append(m.records, rec)
	return nil
}

// List retrieves runs with filters, newest first, without candidate rows.
func (m *MemoryStore) List(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var filtered []RunRecord
	for _, rec := range m.records {
		if matchesFilter(rec, filter) {
			rec.Candidates = nil
			filtered = append(filtered, rec)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].StartedAt.After(filtered[j].StartedAt)
	})

	if filter.Limit > 0 {
		start := filter.Offset
		end := start + filter.Limit
		if end > len(filtered) {
			end = len(filtered)
		}
		if start < len(filtered) {
			filtered = filtered[start:end]
		} else {
			filtered = []RunRecord{}
		}
	}

	return filtered, nil
}

// Get loads one run with its candidate rows attached.
func (m *MemoryStore) Get(ctx context.Context, runID string) (*RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.records {
		if rec.RunID == runID {
			out := rec
			out.Candidates = append([]CandidateRecord(nil), rec.Candidates...)
			return &out, nil
		}
	}

	return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
}

// Summary aggregates the filtered runs.
func (m *MemoryStore) Summary(ctx context.Context, filter RunFilter) (RunSummary, error) {
	records, err := m.List(ctx, filter)
	if err != nil {
		return RunSummary{}, err
	}

	var summary RunSummary
	summary.TotalRuns = int64(len(records))

	var scoreSum float64
	for i, rec := range records {
		if i == 0 || rec.BestScore > summary.BestScore {
			summary.BestScore = rec.BestScore
		}
		scoreSum += rec.BestScore
		summary.CandidatesTotal += int64(rec.CandidatesTotal)
		summary.CandidatesFailed += int64(rec.CandidatesFailed)
	}
	if summary.TotalRuns > 0 {
		summary.MeanScore = scoreSum / float64(summary.TotalRuns)
	}

	return summary, nil
}

// Export renders the filtered runs in the requested format.
func (m *MemoryStore) Export(ctx context.Context, filter RunFilter, format ExportFormat) ([]byte, error) {
	records, err := m.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportFormatJSON:
		return json.MarshalIndent(records, "", "  ")
	case ExportFormatCSV:
		return exportCSV(records)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

func matchesFilter(rec RunRecord, filter RunFilter) bool {
	if filter.From != nil && rec.StartedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && rec.StartedAt.After(*filter.To) {
		return false
	}
	if filter.Classifier != "" && rec.BestClassifier != filter.Classifier {
		return false
	}
	if filter.Dataset != "" && rec.DatasetPath != filter.Dataset {
		return false
	}
	if filter.MinScore != nil && rec.BestScore < *filter.MinScore {
		return false
	}
	return true
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
