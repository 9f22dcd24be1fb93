package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/anime-shed/image-eval-go/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	base_dir      TEXT NOT NULL,
	improved_dir  TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	finished_at   TEXT,
	comparisons   INTEGER NOT NULL DEFAULT 0,
	failures      INTEGER NOT NULL DEFAULT 0,
	final_json    TEXT
);

CREATE TABLE IF NOT EXISTS pair_results (
	run_id            TEXT NOT NULL,
	idx               INTEGER NOT NULL,
	pair_key          TEXT NOT NULL,
	base_name         TEXT NOT NULL,
	improved_name     TEXT NOT NULL,
	metrics_json      TEXT NOT NULL,
	diagnostics_json  TEXT NOT NULL,
	result_json       TEXT NOT NULL,
	duration_ms       INTEGER NOT NULL,
	PRIMARY KEY (run_id, idx),
	FOREIGN KEY (run_id) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS pair_failures (
	run_id         TEXT NOT NULL,
	idx            INTEGER NOT NULL,
	pair_key       TEXT NOT NULL,
	base_name      TEXT NOT NULL,
	improved_name  TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	message        TEXT NOT NULL,
	PRIMARY KEY (run_id, idx),
	FOREIGN KEY (run_id) REFERENCES runs(id)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// timeLayout is fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRunRepository implements RunRepository on a SQLite file
type SQLiteRunRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRunRepository opens the database at path and runs migrations
func NewSQLiteRunRepository(path string) (*SQLiteRunRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one connection keeps :memory: databases shared and writes serialized
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteRunRepository{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection
func (r *SQLiteRunRepository) Close() error {
	return r.db.Close()
}

// CreateRun implements RunRepository
func (r *SQLiteRunRepository) CreateRun(ctx context.Context, baseDir, improvedDir string) (string, error) {
	id := uuid.New().String()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, base_dir, improved_dir, started_at) VALUES (?, ?, ?, ?)`,
		id, baseDir, improvedDir, r.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// SavePair implements RunRepository
func (r *SQLiteRunRepository) SavePair(ctx context.Context, runID string, report models.PairReport) error {
	metricsJSON, err := json.Marshal(report.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	diagJSON, err := json.Marshal(report.Diagnostics)
	if err != nil {
		return fmt.Errorf("marshal diagnostics: %w", err)
	}
	resultJSON, err := json.Marshal(report.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	return r.inOpenRun(ctx, runID, "comparisons", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pair_results
			(run_id, idx, pair_key, base_name, improved_name, metrics_json, diagnostics_json, result_json, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, report.Index, report.Pair.Key, report.Pair.Base, report.Pair.Improved,
			string(metricsJSON), string(diagJSON), string(resultJSON), report.DurationMs,
		)
		return err
	})
}

// SaveFailure implements RunRepository
func (r *SQLiteRunRepository) SaveFailure(ctx context.Context, runID string, failure models.PairFailure) error {
	return r.inOpenRun(ctx, runID, "failures", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pair_failures
			(run_id, idx, pair_key, base_name, improved_name, error_type, message)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, failure.Index, failure.Pair.Key, failure.Pair.Base, failure.Pair.Improved,
			failure.ErrorType, failure.Message,
		)
		return err
	})
}

// inOpenRun bumps the named counter of an open run and runs insert in the
// same transaction
func (r *SQLiteRunRepository) inOpenRun(ctx context.Context, runID, counter string, insert func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE runs SET %[1]s = %[1]s + 1 WHERE id = ? AND finished_at IS NULL`, counter),
		runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.closedRunError(ctx, tx, runID)
	}
	if err := insert(tx); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return tx.Commit()
}

func (r *SQLiteRunRepository) closedRunError(ctx context.Context, tx *sql.Tx, runID string) error {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRunNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup run: %w", err)
	}
	return ErrRunCompleted
}

// CompleteRun implements RunRepository
func (r *SQLiteRunRepository) CompleteRun(ctx context.Context, runID string, final *models.BatchSummary) error {
	var finalJSON sql.NullString
	if final != nil {
		data, err := json.Marshal(final)
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
		finalJSON = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, final_json = ? WHERE id = ? AND finished_at IS NULL`,
		r.now().UTC().Format(timeLayout), finalJSON, runID,
	)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.closedRunError(ctx, tx, runID)
	}
	return tx.Commit()
}

const runColumns = `id, base_dir, improved_dir, started_at, finished_at, comparisons, failures, final_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.RunRecord, error) {
	var (
		rec        models.RunRecord
		startedAt  string
		finishedAt sql.NullString
		finalJSON  sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.BaseDir, &rec.ImprovedDir, &startedAt, &finishedAt,
		&rec.Comparisons, &rec.Failures, &finalJSON); err != nil {
		return nil, err
	}

	t, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	rec.StartedAt = t
	if finishedAt.Valid {
		t, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		rec.FinishedAt = &t
	}
	if finalJSON.Valid {
		var final models.BatchSummary
		if err := json.Unmarshal([]byte(finalJSON.String), &final); err != nil {
			return nil, fmt.Errorf("unmarshal summary: %w", err)
		}
		rec.Final = &final
	}
	return &rec, nil
}

// GetRun implements RunRepository
func (r *SQLiteRunRepository) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	rec, err := scanRun(r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRuns implements RunRepository. A limit of zero or less returns every run.
func (r *SQLiteRunRepository) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// ListPairs implements RunRepository
func (r *SQLiteRunRepository) ListPairs(ctx context.Context, runID string) ([]models.PairReport, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT idx, pair_key, base_name, improved_name, metrics_json, diagnostics_json, result_json, duration_ms
		FROM pair_results WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query pairs: %w", err)
	}
	defer rows.Close()

	var out []models.PairReport
	for rows.Next() {
		var (
			p                                 models.PairReport
			metricsJSON, diagJSON, resultJSON string
		)
		if err := rows.Scan(&p.Index, &p.Pair.Key, &p.Pair.Base, &p.Pair.Improved,
			&metricsJSON, &diagJSON, &resultJSON, &p.DurationMs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metricsJSON), &p.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
		if err := json.Unmarshal([]byte(diagJSON), &p.Diagnostics); err != nil {
			return nil, fmt.Errorf("unmarshal diagnostics: %w", err)
		}
		if err := json.Unmarshal([]byte(resultJSON), &p.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListFailures implements RunRepository
func (r *SQLiteRunRepository) ListFailures(ctx context.Context, runID string) ([]models.PairFailure, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT idx, pair_key, base_name, improved_name, error_type, message
		FROM pair_failures WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	var out []models.PairFailure
	for rows.Next() {
		var f models.PairFailure
		if err := rows.Scan(&f.Index, &f.Pair.Key, &f.Pair.Base, &f.Pair.Improved, &f.ErrorType, &f.Message); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
