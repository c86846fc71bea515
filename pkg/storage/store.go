package storage

import (
	"context"
	"time"

	"github.com/nezumi0627/ClawBridge/pkg/api"
)

// ResultStore persists connectivity probe results.
type ResultStore interface {
	// SaveResults replaces the whole result set.
	SaveResults(ctx context.Context, results []api.ProbeResult) error

	// UpsertResult inserts or replaces the result for r's (provider, model).
	UpsertResult(ctx context.Context, r api.ProbeResult) error

	// ListResults returns every stored result ordered by provider and model.
	ListResults(ctx context.Context) ([]api.ProbeResult, error)
}

// FailureStore records recent backend failures for cooldown demotion.
type FailureStore interface {
	// MarkFailure records that key failed at t.
	MarkFailure(ctx context.Context, key string, t time.Time) error

	// FailedSince returns the last failure time of key. The boolean is
	// false when no failure is recorded.
	FailedSince(ctx context.Context, key string) (time.Time, bool, error)

	// Clear forgets the failure recorded for key.
	Clear(ctx context.Context, key string) error
}

// Store is implemented by every adapter.
type Store interface {
	ResultStore
	FailureStore
	Close() error
}

// FailureKey builds the FailureStore key for a (provider, model) pair.
func FailureKey(provider, model string) string {
	return provider + "/" + model
}
