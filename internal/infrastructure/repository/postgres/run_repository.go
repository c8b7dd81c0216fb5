package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/loansphere/internal/core/domain"
	"github.com/kirillkom/loansphere/internal/infrastructure/resilience"
)

const maxListLimit = 500

type RunRepository struct {
	db       *sql.DB
	executor *resilience.Executor
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// WithExecutor routes history writes through executor, retrying transient
// database failures.
func (r *RunRepository) WithExecutor(executor *resilience.Executor) *RunRepository {
	r.executor = executor
	return r
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// api and worker may start together
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS prediction_runs (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	filename TEXT NOT NULL DEFAULT '',
	format TEXT NOT NULL DEFAULT '',
	rows INTEGER NOT NULL,
	approved INTEGER NOT NULL,
	model TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prediction_runs_created_at ON prediction_runs(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// RecordRun inserts a run. Redelivered events with a known id are ignored.
func (r *RunRepository) RecordRun(ctx context.Context, run domain.PredictionRun) error {
	if r.executor == nil {
		return r.insertRun(ctx, run)
	}
	return r.executor.Execute(ctx, "postgres.record_run", func(ctx context.Context) error {
		return r.insertRun(ctx, run)
	}, ClassifyError)
}

func (r *RunRepository) insertRun(ctx context.Context, run domain.PredictionRun) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO prediction_runs (id, source, filename, format, rows, approved, model, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO NOTHING
`, run.ID, string(run.Source), run.Filename, string(run.Format), run.Rows, run.Approved, run.Model, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert prediction run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]domain.PredictionRun, error) {
	if limit <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list runs", fmt.Errorf("limit must be positive, got %d", limit))
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, source, filename, format, rows, approved, model, created_at
FROM prediction_runs
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list prediction runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.PredictionRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prediction run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prediction runs: %w", err)
	}
	return out, nil
}

type runScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row runScanner) (domain.PredictionRun, error) {
	var run domain.PredictionRun
	var source, format string
	err := row.Scan(
		&run.ID,
		&source,
		&run.Filename,
		&format,
		&run.Rows,
		&run.Approved,
		&run.Model,
		&run.CreatedAt,
	)
	if err != nil {
		return domain.PredictionRun{}, err
	}
	run.Source = domain.RunSource(source)
	run.Format = domain.Format(format)
	return run, nil
}
