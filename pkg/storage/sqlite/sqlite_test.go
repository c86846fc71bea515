package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/storage"
	"github.com/nezumi0627/ClawBridge/pkg/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := New(context.Background(), filepath.Join(t.TempDir(), "clawbridge.db"))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return s
	})
}

func TestResultsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clawbridge.db")

	s, err := New(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertResult(ctx, api.ProbeResult{Provider: "groq", Model: "llama-3.1-8b-instant", Success: true}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	reopened, err := New(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got, err := reopened.ListResults(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Key() != "groq/llama-3.1-8b-instant" || !got[0].Success {
		t.Errorf("results after reopen = %+v", got)
	}
}
