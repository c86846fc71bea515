// Package sqlite provides a file-backed storage.Store on SQLite, for single
// node deployments that keep connectivity results across restarts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS failures (
	key       TEXT PRIMARY KEY,
	failed_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	provider   TEXT NOT NULL,
	model      TEXT NOT NULL,
	success    INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	error_kind TEXT NOT NULL DEFAULT '',
	tested_at  INTEGER NOT NULL,
	PRIMARY KEY (provider, model)
);`

const upsertResult = `
INSERT INTO results (provider, model, success, latency_ms, content, error, error_kind, tested_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (provider, model) DO UPDATE SET
	success = excluded.success,
	latency_ms = excluded.latency_ms,
	content = excluded.content,
	error = excluded.error,
	error_kind = excluded.error_kind,
	tested_at = excluded.tested_at`

// Store is a SQLite-backed storage.Store.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// New opens (creating if needed) the database at path and applies the
// schema.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// SQLite serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveResults replaces the stored result set in one transaction.
func (s *Store) SaveResults(ctx context.Context, results []api.ProbeResult) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM results`); err != nil {
		return fmt.Errorf("clearing results: %w", err)
	}
	for _, r := range results {
		if _, err := tx.ExecContext(ctx, upsertResult, resultArgs(r)...); err != nil {
			return fmt.Errorf("inserting result %s: %w", r.Key(), err)
		}
	}
	return tx.Commit()
}

// UpsertResult stores r, replacing any result for the same combination.
func (s *Store) UpsertResult(ctx context.Context, r api.ProbeResult) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, upsertResult, resultArgs(r)...); err != nil {
		return fmt.Errorf("upserting result %s: %w", r.Key(), err)
	}
	return nil
}

func resultArgs(r api.ProbeResult) []any {
	return []any{r.Provider, r.Model, r.Success, r.LatencyMs, r.Content, r.Error, r.ErrorKind, r.TestedAt.UnixMilli()}
}

// ListResults returns the stored results ordered by provider and model.
func (s *Store) ListResults(ctx context.Context) ([]api.ProbeResult, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, model, success, latency_ms, content, error, error_kind, tested_at
		FROM results ORDER BY provider, model`)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	var out []api.ProbeResult
	for rows.Next() {
		var r api.ProbeResult
		var testedAt int64
		if err := rows.Scan(&r.Provider, &r.Model, &r.Success, &r.LatencyMs,
			&r.Content, &r.Error, &r.ErrorKind, &testedAt); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		r.TestedAt = time.UnixMilli(testedAt).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkFailure records that key failed at t.
func (s *Store) MarkFailure(ctx context.Context, key string, t time.Time) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failures (key, failed_at) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET failed_at = excluded.failed_at`,
		key, t.UnixMilli())
	return err
}

// FailedSince returns the last failure recorded for key.
func (s *Store) FailedSince(ctx context.Context, key string) (time.Time, bool, error) {
	if s.closed.Load() {
		return time.Time{}, false, storage.ErrClosed
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT failed_at FROM failures WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// Clear forgets the failure recorded for key.
func (s *Store) Clear(ctx context.Context, key string) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM failures WHERE key = ?`, key)
	return err
}

// Close closes the database. Later calls return storage.ErrClosed.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
