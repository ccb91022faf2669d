package runhistory

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements a SQLite-backed run log.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the run log at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		dataset_path TEXT NOT NULL,
		dataset_sha256 TEXT NOT NULL,
		dataset_rows INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		validation_ratio REAL NOT NULL,
		classifiers TEXT NOT NULL,
		normalizers TEXT NOT NULL,
		balancers TEXT NOT NULL,
		best_classifier TEXT NOT NULL,
		best_normalizer TEXT NOT NULL,
		best_balancer TEXT NOT NULL,
		best_score REAL NOT NULL,
		candidates_total INTEGER NOT NULL,
		candidates_failed INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_best_classifier ON runs(best_classifier);
	CREATE INDEX IF NOT EXISTS idx_runs_best_score ON runs(best_score);
	CREATE INDEX IF NOT EXISTS idx_runs_dataset_path ON runs(dataset_path);

	CREATE TABLE IF NOT EXISTS candidates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		classifier TEXT NOT NULL,
		normalizer TEXT NOT NULL,
		balancer TEXT NOT NULL,
		score REAL NOT NULL,
		fit_error TEXT NOT NULL DEFAULT '',
		elapsed_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_candidates_run_id ON candidates(run_id);
	`

	_, err := s.db.Exec(query)
	return err
}

// Record inserts one run and its candidate rows atomically.
func (s *SQLiteStore) Record(ctx context.Context, rec RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO runs (
		run_id, started_at, duration_ms, dataset_path, dataset_sha256, dataset_rows,
		seed, validation_ratio, classifiers, normalizers, balancers,
		best_classifier, best_normalizer, best_balancer, best_score,
		candidates_total, candidates_failed
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, query,
		rec.RunID,
		rec.StartedAt,
		rec.Duration.Milliseconds(),
		rec.DatasetPath,
		rec.DatasetSHA256,
		rec.DatasetRows,
		rec.Seed,
		rec.ValidationRatio,
		rec.Classifiers,
		rec.Normalizers,
		rec.Balancers,
		rec.BestClassifier,
		rec.BestNormalizer,
		rec.BestBalancer,
		rec.BestScore,
		rec.CandidatesTotal,
		rec.CandidatesFailed,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.RunID, err)
	}

	candQuery := `
	INSERT INTO candidates (
		run_id, classifier, normalizer, balancer, score, fit_error, elapsed_ms
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	for _, c := range rec.Candidates {
		_, err = tx.ExecContext(ctx, candQuery,
			rec.RunID,
			c.Classifier,
			c.Normalizer,
			c.Balancer,
			c.Score,
			c.FitError,
			c.Elapsed.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert candidate %s/%s/%s: %w", c.Classifier, c.Normalizer, c.Balancer, err)
		}
	}

	return tx.Commit()
}

// List retrieves runs with filters, newest first, without candidate rows.
func (s *SQLiteStore) List(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	query, args := s.buildQuery(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Get loads one run with its candidate rows attached.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (*RunRecord, error) {
	query := selectRunColumns + " FROM runs WHERE run_id = ?"

	rec, err := scanRun(s.db.QueryRowContext(ctx, query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}

	candQuery := `
	SELECT id, run_id, classifier, normalizer, balancer, score, fit_error, elapsed_ms
	FROM candidates
	WHERE run_id = ?
	ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, candQuery, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c CandidateRecord
		var elapsedMS int64
		err := rows.Scan(
			&c.ID,
			&c.RunID,
			&c.Classifier,
			&c.Normalizer,
			&c.Balancer,
			&c.Score,
			&c.FitError,
			&elapsedMS,
		)
		if err != nil {
			return nil, err
		}
		c.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		rec.Candidates = append(rec.Candidates, c)
	}

	return &rec, rows.Err()
}

// Summary aggregates the filtered runs.
func (s *SQLiteStore) Summary(ctx context.Context, filter RunFilter) (RunSummary, error) {
	whereClause, args := s.buildWhereClause(filter)

	query := fmt.Sprintf(`
		SELECT
			COUNT(*) as total_runs,
			COALESCE(MAX(best_score), 0) as best_score,
			COALESCE(AVG(best_score), 0) as mean_score,
			COALESCE(SUM(candidates_total), 0) as candidates_total,
			COALESCE(SUM(candidates_failed), 0) as candidates_failed
		FROM runs
		%s
	`, whereClause)

	var summary RunSummary
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.TotalRuns,
		&summary.BestScore,
		&summary.MeanScore,
		&summary.CandidatesTotal,
		&summary.CandidatesFailed,
	)

	return summary, err
}

// Export renders the filtered runs in the requested format.
func (s *SQLiteStore) Export(ctx context.Context, filter RunFilter, format ExportFormat) ([]byte, error) {
	records, err := s.List(ctx, filter)
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

const selectRunColumns = `
	SELECT
		id, run_id, started_at, duration_ms, dataset_path, dataset_sha256, dataset_rows,
		seed, validation_ratio, classifiers, normalizers, balancers,
		best_classifier, best_normalizer, best_balancer, best_score,
		candidates_total, candidates_failed`

func (s *SQLiteStore) buildQuery(filter RunFilter) (string, []interface{}) {
	whereClause, args := s.buildWhereClause(filter)

	query := fmt.Sprintf("%s FROM runs %s ORDER BY started_at DESC", selectRunColumns, whereClause)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	return query, args
}

func (s *SQLiteStore) buildWhereClause(filter RunFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if filter.From != nil {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, "started_at <= ?")
		args = append(args, *filter.To)
	}
	if filter.Classifier != "" {
		conditions = append(conditions, "best_classifier = ?")
		args = append(args, filter.Classifier)
	}
	if filter.Dataset != "" {
		conditions = append(conditions, "dataset_path = ?")
		args = append(args, filter.Dataset)
	}
	if filter.MinScore != nil {
		conditions = append(conditions, "best_score >= ?")
		args = append(args, *filter.MinScore)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	return whereClause, args
}

func scanRun(row interface{ Scan(dest ...any) error }) (RunRecord, error) {
	var rec RunRecord
	var durationMS int64
	err := row.Scan(
		&rec.ID,
		&rec.RunID,
		&rec.StartedAt,
		&durationMS,
		&rec.DatasetPath,
		&rec.DatasetSHA256,
		&rec.DatasetRows,
		&rec.Seed,
		&rec.ValidationRatio,
		&rec.Classifiers,
		&rec.Normalizers,
		&rec.Balancers,
		&rec.BestClassifier,
		&rec.BestNormalizer,
		&rec.BestBalancer,
		&rec.BestScore,
		&rec.CandidatesTotal,
		&rec.CandidatesFailed,
	)
	if err != nil {
		return RunRecord{}, err
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return rec, nil
}

func exportCSV(records []RunRecord) ([]byte, error) {
	var buf strings.Builder
	writer := csv.NewWriter(&buf)

	header := []string{
		"Run ID", "Started At", "Duration", "Dataset", "Rows", "Seed",
		"Validation Ratio", "Classifiers", "Normalizers", "Balancers",
		"Best Combination", "Best Score", "Candidates", "Failed",
	}
	if err := writer.Write(header); err != nil {
		return nil, err
	}

	for _, rec := range records {
		row := []string{
			rec.RunID,
			rec.StartedAt.Format(time.RFC3339),
			rec.Duration.String(),
			rec.DatasetPath,
			fmt.Sprintf("%d", rec.DatasetRows),
			fmt.Sprintf("%d", rec.Seed),
			fmt.Sprintf("%.2f", rec.ValidationRatio),
			rec.Classifiers,
			rec.Normalizers,
			rec.Balancers,
			rec.BestCombo(),
			fmt.Sprintf("%.4f", rec.BestScore),
			fmt.Sprintf("%d", rec.CandidatesTotal),
			fmt.Sprintf("%d", rec.CandidatesFailed),
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	return []byte(buf.String()), nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
