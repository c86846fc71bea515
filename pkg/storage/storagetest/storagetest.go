// Package storagetest holds the behavior every storage.Store adapter must
// share. Adapter packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/storage"
)

// Factory returns an empty store. Run closes it when the subtest ends.
type Factory func(t *testing.T) storage.Store

// Run exercises the storage.Store contract against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"SaveAndList", testSaveAndList},
		{"SaveReplaces", testSaveReplaces},
		{"Upsert", testUpsert},
		{"Failures", testFailures},
		{"Closed", testClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s)
		})
	}
}

var testedAt = time.Date(2026, 3, 1, 12, 30, 0, 123000000, time.UTC)

func result(provider, model string, ok bool) api.ProbeResult {
	r := api.ProbeResult{Provider: provider, Model: model, Success: ok, LatencyMs: 420, TestedAt: testedAt}
	if ok {
		r.Content = "Hello"
	} else {
		r.Error = "HTTP 401: Unauthorized"
		r.ErrorKind = api.ErrorKindAuthRequired
	}
	return r
}

func list(t *testing.T, s storage.Store) []api.ProbeResult {
	t.Helper()
	got, err := s.ListResults(context.Background())
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	return got
}

func equal(a, b api.ProbeResult) bool {
	return a.Provider == b.Provider && a.Model == b.Model && a.Success == b.Success &&
		a.LatencyMs == b.LatencyMs && a.Content == b.Content && a.Error == b.Error &&
		a.ErrorKind == b.ErrorKind && a.TestedAt.Equal(b.TestedAt)
}

func testSaveAndList(t *testing.T, s storage.Store) {
	ctx := context.Background()
	if got := list(t, s); len(got) != 0 {
		t.Fatalf("new store has %d results", len(got))
	}
	want := []api.ProbeResult{
		result("puter", "gpt-4o-mini", false),
		result("groq", "llama-3.1-8b-instant", true),
		result("groq", "llama-3.3-70b-versatile", true),
	}
	if err := s.SaveResults(ctx, want); err != nil {
		t.Fatalf("SaveResults: %v", err)
	}

	got := list(t, s)
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3", len(got))
	}
	order := []string{"groq/llama-3.1-8b-instant", "groq/llama-3.3-70b-versatile", "puter/gpt-4o-mini"}
	for i, key := range order {
		if got[i].Key() != key {
			t.Errorf("result %d = %s, want %s", i, got[i].Key(), key)
		}
	}
	if !equal(got[2], want[0]) {
		t.Errorf("round trip = %+v, want %+v", got[2], want[0])
	}
}

func testSaveReplaces(t *testing.T, s storage.Store) {
	ctx := context.Background()
	if err := s.SaveResults(ctx, []api.ProbeResult{result("a", "1", true), result("a", "2", true)}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveResults(ctx, []api.ProbeResult{result("b", "1", false)}); err != nil {
		t.Fatal(err)
	}
	got := list(t, s)
	if len(got) != 1 || got[0].Key() != "b/1" {
		t.Errorf("results = %+v, want only b/1", got)
	}
	if err := s.SaveResults(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if got := list(t, s); len(got) != 0 {
		t.Errorf("empty save left %d results", len(got))
	}
}

func testUpsert(t *testing.T, s storage.Store) {
	ctx := context.Background()
	if err := s.SaveResults(ctx, []api.ProbeResult{result("g4f", "gpt-4o", false)}); err != nil {
		t.Fatal(err)
	}
	fixed := result("g4f", "gpt-4o", true)
	if err := s.UpsertResult(ctx, fixed); err != nil {
		t.Fatalf("UpsertResult: %v", err)
	}
	if err := s.UpsertResult(ctx, result("gemini", "gemini-2.1-flash", true)); err != nil {
		t.Fatalf("UpsertResult: %v", err)
	}

	got := list(t, s)
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].Key() != "gemini/gemini-2.1-flash" {
		t.Errorf("first = %s", got[0].Key())
	}
	if !equal(got[1], fixed) {
		t.Errorf("upserted = %+v, want %+v", got[1], fixed)
	}
}

func testFailures(t *testing.T, s storage.Store) {
	ctx := context.Background()
	key := storage.FailureKey("groq", "llama-3.3-70b-versatile")

	if _, ok, err := s.FailedSince(ctx, key); err != nil || ok {
		t.Fatalf("FailedSince on empty store = %v, %v", ok, err)
	}

	first := testedAt
	if err := s.MarkFailure(ctx, key, first); err != nil {
		t.Fatalf("MarkFailure: %v", err)
	}
	got, ok, err := s.FailedSince(ctx, key)
	if err != nil || !ok || !got.Equal(first) {
		t.Fatalf("FailedSince = %v, %v, %v; want %v", got, ok, err, first)
	}

	later := first.Add(time.Minute)
	if err := s.MarkFailure(ctx, key, later); err != nil {
		t.Fatal(err)
	}
	if got, _, _ := s.FailedSince(ctx, key); !got.Equal(later) {
		t.Errorf("FailedSince after second mark = %v, want %v", got, later)
	}

	if err := s.Clear(ctx, key); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := s.FailedSince(ctx, key); ok {
		t.Error("failure still recorded after Clear")
	}
	if err := s.Clear(ctx, "missing/key"); err != nil {
		t.Errorf("Clear of unknown key = %v", err)
	}
}

func testClosed(t *testing.T, s storage.Store) {
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if _, err := s.ListResults(context.Background()); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("ListResults after Close = %v, want ErrClosed", err)
	}
	if err := s.MarkFailure(context.Background(), "a/b", time.Now()); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("MarkFailure after Close = %v, want ErrClosed", err)
	}
}
