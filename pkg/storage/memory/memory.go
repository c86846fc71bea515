// Package memory provides an in-memory storage.Store. Contents are lost
// when the process exits.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/storage"
)

// Store is an in-memory storage.Store.
type Store struct {
	mu       sync.RWMutex
	results  map[string]api.ProbeResult
	failures map[string]time.Time
	closed   bool
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		results:  make(map[string]api.ProbeResult),
		failures: make(map[string]time.Time),
	}
}

// SaveResults replaces the stored result set.
func (s *Store) SaveResults(_ context.Context, results []api.ProbeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	s.results = make(map[string]api.ProbeResult, len(results))
	for _, r := range results {
		s.results[r.Key()] = r
	}
	return nil
}

// UpsertResult stores r, replacing any result for the same combination.
func (s *Store) UpsertResult(_ context.Context, r api.ProbeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	s.results[r.Key()] = r
	return nil
}

// ListResults returns the stored results ordered by provider and model.
func (s *Store) ListResults(_ context.Context) ([]api.ProbeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}
	out := make([]api.ProbeResult, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out, nil
}

// MarkFailure records that key failed at t.
func (s *Store) MarkFailure(_ context.Context, key string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	s.failures[key] = t
	return nil
}

// FailedSince returns the last failure recorded for key.
func (s *Store) FailedSince(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return time.Time{}, false, storage.ErrClosed
	}
	t, ok := s.failures[key]
	return t, ok, nil
}

// Clear forgets the failure recorded for key.
func (s *Store) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	delete(s.failures, key)
	return nil
}

// Close releases the store. Later calls return storage.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
