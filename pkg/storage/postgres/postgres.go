// Package postgres provides a PostgreSQL storage.Store, for deployments
// where several replicas share connectivity results and failure cooldowns.
// It uses pgx/v5 for connection pooling.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/storage"
)

const upsertResult = `
	INSERT INTO probe_results (
		provider, model, success, latency_ms, content, error, error_kind, tested_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (provider, model) DO UPDATE SET
		success = EXCLUDED.success,
		latency_ms = EXCLUDED.latency_ms,
		content = EXCLUDED.content,
		error = EXCLUDED.error,
		error_kind = EXCLUDED.error_kind,
		tested_at = EXCLUDED.tested_at`

// Store is a PostgreSQL-backed storage.Store.
type Store struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// SaveResults replaces the stored result set in one transaction.
func (s *Store) SaveResults(ctx context.Context, results []api.ProbeResult) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM probe_results`); err != nil {
			return fmt.Errorf("clearing results: %w", err)
		}
		if len(results) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, r := range results {
			batch.Queue(upsertResult, resultArgs(r)...)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting results: %w", err)
		}
		return nil
	})
}

// UpsertResult stores r, replacing any result for the same combination.
func (s *Store) UpsertResult(ctx context.Context, r api.ProbeResult) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	if _, err := s.pool.Exec(ctx, upsertResult, resultArgs(r)...); err != nil {
		return fmt.Errorf("upserting result %s: %w", r.Key(), err)
	}
	return nil
}

func resultArgs(r api.ProbeResult) []any {
	return []any{r.Provider, r.Model, r.Success, r.LatencyMs, r.Content, r.Error, r.ErrorKind, r.TestedAt}
}

// ListResults returns the stored results ordered by provider and model.
func (s *Store) ListResults(ctx context.Context) ([]api.ProbeResult, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	rows, err := s.pool.Query(ctx, `
		SELECT provider, model, success, latency_ms, content, error, error_kind, tested_at
		FROM probe_results
		ORDER BY provider, model
	`)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (api.ProbeResult, error) {
		var r api.ProbeResult
		err := row.Scan(&r.Provider, &r.Model, &r.Success, &r.LatencyMs,
			&r.Content, &r.Error, &r.ErrorKind, &r.TestedAt)
		r.TestedAt = r.TestedAt.UTC()
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning results: %w", err)
	}
	return out, nil
}

// MarkFailure records that key failed at t.
func (s *Store) MarkFailure(ctx context.Context, key string, t time.Time) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO backend_failures (key, failed_at) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET failed_at = EXCLUDED.failed_at
	`, key, t)
	if err != nil {
		return fmt.Errorf("recording failure: %w", err)
	}
	return nil
}

// FailedSince returns the last failure recorded for key.
func (s *Store) FailedSince(ctx context.Context, key string) (time.Time, bool, error) {
	if s.closed.Load() {
		return time.Time{}, false, storage.ErrClosed
	}
	var t time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT failed_at FROM backend_failures WHERE key = $1`, key,
	).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying failure: %w", err)
	}
	return t.UTC(), true, nil
}

// Clear forgets the failure recorded for key.
func (s *Store) Clear(ctx context.Context, key string) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM backend_failures WHERE key = $1`, key); err != nil {
		return fmt.Errorf("clearing failure: %w", err)
	}
	return nil
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if !s.closed.Swap(true) {
		s.pool.Close()
	}
	return nil
}

// reset empties every table. Tests share one database.
func (s *Store) reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE probe_results, backend_failures`)
	return err
}
