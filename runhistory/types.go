// Package runhistory keeps a queryable log of past training runs: one
// record per run with the requested search grid, the dataset identity,
// the winning combination, and one child record per evaluated candidate.
package runhistory

import (
	"context"
	"errors"
	"time"

	"github.com/radon-h2020/radon-defect-predictor/core"
)

// ErrRunNotFound reports a lookup for a run id the log has never seen.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one completed training run.
type RunRecord struct {
	ID               int64             `json:"id" db:"id"`
	RunID            string            `json:"run_id" db:"run_id"`
	StartedAt        time.Time         `json:"started_at" db:"started_at"`
	Duration         time.Duration     `json:"duration" db:"duration_ms"`
	DatasetPath      string            `json:"dataset_path" db:"dataset_path"`
	DatasetSHA256    string            `json:"dataset_sha256" db:"dataset_sha256"`
	DatasetRows      int               `json:"dataset_rows" db:"dataset_rows"`
	Seed             int64             `json:"seed" db:"seed"`
	ValidationRatio  float64           `json:"validation_ratio" db:"validation_ratio"`
	Classifiers      string            `json:"classifiers" db:"classifiers"`
	Normalizers      string            `json:"normalizers" db:"normalizers"`
	Balancers        string            `json:"balancers" db:"balancers"`
	BestClassifier   string            `json:"best_classifier" db:"best_classifier"`
	BestNormalizer   string            `json:"best_normalizer" db:"best_normalizer"`
	BestBalancer     string            `json:"best_balancer" db:"best_balancer"`
	BestScore        float64           `json:"best_score" db:"best_score"`
	CandidatesTotal  int               `json:"candidates_total" db:"candidates_total"`
	CandidatesFailed int               `json:"candidates_failed" db:"candidates_failed"`
	Candidates       []CandidateRecord `json:"candidates,omitempty"`
}

// BestCombo renders the winning combination in classifier/normalizer/balancer form.
func (r RunRecord) BestCombo() string {
	return r.BestClassifier + "/" + r.BestNormalizer + "/" + r.BestBalancer
}

// CandidateRecord is one evaluated point of a run's search grid.
type CandidateRecord struct {
	ID         int64         `json:"id" db:"id"`
	RunID      string        `json:"run_id" db:"run_id"`
	Classifier string        `json:"classifier" db:"classifier"`
	Normalizer string        `json:"normalizer" db:"normalizer"`
	Balancer   string        `json:"balancer" db:"balancer"`
	Score      float64       `json:"score" db:"score"`
	FitError   string        `json:"fit_error,omitempty" db:"fit_error"`
	Elapsed    time.Duration `json:"elapsed" db:"elapsed_ms"`
}

// RunFilter narrows run queries. Nil pointer fields and empty strings
// mean no constraint on that column.
type RunFilter struct {
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
	Classifier string     `json:"classifier,omitempty"` // matches the winning classifier
	Dataset    string     `json:"dataset,omitempty"`    // matches the dataset path
	MinScore   *float64   `json:"min_score,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Offset     int        `json:"offset,omitempty"`
}

// RunSummary aggregates the filtered runs.
type RunSummary struct {
	TotalRuns        int64   `json:"total_runs"`
	BestScore        float64 `json:"best_score"`
	MeanScore        float64 `json:"mean_score"`
	CandidatesTotal  int64   `json:"candidates_total"`
	CandidatesFailed int64   `json:"candidates_failed"`
}

// ExportFormat represents supported export formats.
type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "json"
	ExportFormatCSV  ExportFormat = "csv"
)

// Store is the run log. List returns runs without their candidate rows;
// Get loads one run with candidates attached.
type Store interface {
	Record(ctx context.Context, rec RunRecord) error
	List(ctx context.Context, filter RunFilter) ([]RunRecord, error)
	Get(ctx context.Context, runID string) (*RunRecord, error)
	Summary(ctx context.Context, filter RunFilter) (RunSummary, error)
	Export(ctx context.Context, filter RunFilter, format ExportFormat) ([]byte, error)
	Close() error
}

// FromTraining assembles the log entry for one finished run. Dataset
// identity and the requested option sets are the caller's to fill in;
// everything derivable from the training outputs is set here.
func FromTraining(model *core.SelectedModel, candidates []core.Candidate, elapsed time.Duration) RunRecord {
	rec := RunRecord{
		Duration:        elapsed,
		BestScore:       core.FailedScore,
		CandidatesTotal: len(candidates),
	}
	if model != nil {
		rec.RunID = model.RunID
		rec.StartedAt = model.TrainedAt
		rec.Seed = model.Seed
		rec.BestClassifier = string(model.Combo.Classifier)
		rec.BestNormalizer = string(model.Combo.Normalizer)
		rec.BestBalancer = string(model.Combo.Balancer)
		rec.BestScore = model.Score
	}
	for _, c := range candidates {
		cr := CandidateRecord{
			RunID:      rec.RunID,
			Classifier: string(c.Combo.Classifier),
			Normalizer: string(c.Combo.Normalizer),
			Balancer:   string(c.Combo.Balancer),
			Score:      c.Score,
			FitError:   c.FitErr,
			Elapsed:    c.Elapsed,
		}
		rec.Candidates = append(rec.Candidates, cr)
		if c.Failed() {
			rec.CandidatesFailed++
		}
	}
	return rec
}
