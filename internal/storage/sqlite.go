package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/mirip/internal/lifecycle"
)

// SQLiteStorage implements History using SQLite.
type SQLiteStorage struct {
	db        *sql.DB
	retention int
}

// SQLiteOption configures a SQLiteStorage.
type SQLiteOption func(*SQLiteStorage)

// WithRetention keeps only the newest n builds; n <= 0 keeps everything.
func WithRetention(n int) SQLiteOption {
	return func(s *SQLiteStorage) { s.retention = n }
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string, opts ...SQLiteOption) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		source TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		duration TEXT,
		total INTEGER NOT NULL DEFAULT 0,
		indexed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		persisted INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_builds_started_at ON builds(started_at);

	CREATE TABLE IF NOT EXISTS build_failures (
		build_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		error TEXT NOT NULL,
		PRIMARY KEY (build_id, seq),
		FOREIGN KEY (build_id) REFERENCES builds(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordBuild inserts a build report and its failures in one transaction.
func (s *SQLiteStorage) RecordBuild(ctx context.Context, r *lifecycle.BuildReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO builds (id, kind, source, started_at, finished_at, duration, total, indexed, skipped, failed, persisted, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.Source, r.StartedAt, r.FinishedAt, r.Duration,
		r.Total, r.Indexed, r.Skipped, r.Failed, r.Persisted, r.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert build %s: %w", r.ID, err)
	}

	if len(r.Failures) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO build_failures (build_id, seq, product_id, error) VALUES (?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, f := range r.Failures {
			if _, err := stmt.ExecContext(ctx, r.ID, i, f.ID, f.Error); err != nil {
				return fmt.Errorf("failed to insert build failure: %w", err)
			}
		}
	}

	if s.retention > 0 {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM builds WHERE id NOT IN (
				SELECT id FROM builds ORDER BY started_at DESC LIMIT ?
			)`, s.retention)
		if err != nil {
			return fmt.Errorf("failed to prune builds: %w", err)
		}
	}
	return tx.Commit()
}

// GetBuild returns a build report by id, failures included.
func (s *SQLiteStorage) GetBuild(ctx context.Context, id string) (*lifecycle.BuildReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, source, started_at, finished_at, duration, total, indexed, skipped, failed, persisted, error
		 FROM builds WHERE id = ?`, id)
	r, err := scanBuild(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrBuildNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, error FROM build_failures WHERE build_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var f lifecycle.RecordFailure
		if err := rows.Scan(&f.ID, &f.Error); err != nil {
			return nil, err
		}
		r.Failures = append(r.Failures, f)
	}
	return r, rows.Err()
}

// ListBuilds returns build reports, newest first, without failures.
func (s *SQLiteStorage) ListBuilds(ctx context.Context, offset, limit int) ([]*lifecycle.BuildReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, source, started_at, finished_at, duration, total, indexed, skipped, failed, persisted, error
		 FROM builds ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*lifecycle.BuildReport
	for rows.Next() {
		r, err := scanBuild(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountBuilds returns the number of stored builds.
func (s *SQLiteStorage) CountBuilds(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM builds`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(sc scanner) (*lifecycle.BuildReport, error) {
	var (
		r                   lifecycle.BuildReport
		source, dur, errMsg sql.NullString
		started, finished   time.Time
	)
	if err := sc.Scan(&r.ID, &r.Kind, &source, &started, &finished, &dur,
		&r.Total, &r.Indexed, &r.Skipped, &r.Failed, &r.Persisted, &errMsg); err != nil {
		return nil, err
	}
	r.Source = source.String
	r.Duration = dur.String
	r.Error = errMsg.String
	r.StartedAt = started
	r.FinishedAt = finished
	return &r, nil
}

var _ History = (*SQLiteStorage)(nil)
