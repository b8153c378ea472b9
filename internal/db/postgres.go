package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store and applies migrations
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			path TEXT NOT NULL,
			language TEXT NOT NULL,
			version TEXT NOT NULL,
			framework_version TEXT NOT NULL DEFAULT '',
			time_median_ns BIGINT NOT NULL,
			memory_median BIGINT NOT NULL,
			memory_p99 BIGINT NOT NULL,
			metrics JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_lineage ON runs(kind, path, version, framework_version, created_at DESC);`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *Run) error {
	prepare(run)
	metrics, err := encodeMetrics(run.Metrics)
	if err != nil {
		return err
	}

	query := `INSERT INTO runs (` + runColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = s.db.ExecContext(ctx, query, run.ID, run.Kind, run.Path, run.Language, run.Version, run.FrameworkVersion,
		int64(run.TimeMedian), run.MemoryMedian, run.MemoryP99, metrics, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.Path != "" {
		args = append(args, filter.Path)
		conds = append(conds, fmt.Sprintf("path = $%d", len(args)))
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		run, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *run)
	}
	return results, rows.Err()
}

func (s *PostgresStore) LatestRun(ctx context.Context, key RunKey) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs
		WHERE kind = $1 AND path = $2 AND version = $3 AND framework_version = $4
		ORDER BY created_at DESC LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, key.Kind, key.Path, key.Version, key.FrameworkVersion)
	run, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

func (s *PostgresStore) scan(row scanner) (*Run, error) {
	var created time.Time
	run, metricsRaw, err := scanRun(row, &created)
	if err != nil {
		return nil, err
	}
	run.CreatedAt = created.UTC()
	if run.Metrics, err = decodeMetrics(metricsRaw); err != nil {
		return nil, err
	}
	return run, nil
}
