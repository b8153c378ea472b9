package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore implements Store using SQLite. Timestamps are kept as unix
// nanoseconds so ordering does not depend on the driver's time format.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store and applies migrations
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			path TEXT NOT NULL,
			language TEXT NOT NULL,
			version TEXT NOT NULL,
			framework_version TEXT NOT NULL DEFAULT '',
			time_median_ns INTEGER NOT NULL,
			memory_median INTEGER NOT NULL,
			memory_p99 INTEGER NOT NULL,
			metrics TEXT NOT NULL,
			created_at INTEGER NOT NULL
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	prepare(run)
	metrics, err := encodeMetrics(run.Metrics)
	if err != nil {
		return err
	}

	query := `INSERT INTO runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, run.ID, run.Kind, run.Path, run.Language, run.Version, run.FrameworkVersion,
		int64(run.TimeMedian), run.MemoryMedian, run.MemoryP99, metrics, run.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Path != "" {
		conds = append(conds, "path = ?")
		args = append(args, filter.Path)
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
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

func (s *SQLiteStore) LatestRun(ctx context.Context, key RunKey) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs
		WHERE kind = ? AND path = ? AND version = ? AND framework_version = ?
		ORDER BY created_at DESC LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, key.Kind, key.Path, key.Version, key.FrameworkVersion)
	run, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

func (s *SQLiteStore) scan(row scanner) (*Run, error) {
	var created int64
	run, metricsRaw, err := scanRun(row, &created)
	if err != nil {
		return nil, err
	}
	run.CreatedAt = time.Unix(0, created).UTC()
	if run.Metrics, err = decodeMetrics(metricsRaw); err != nil {
		return nil, err
	}
	return run, nil
}
