package puter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/provider"
	"github.com/nezumi0627/ClawBridge/pkg/provider/openaicompat"
)

func TestComplete_SendsPuterHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body openaicompat.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body.Provider != "PuterJS" {
			t.Errorf("provider = %q, want PuterJS", body.Provider)
		}
		if body.Model != "claude-3-7-sonnet-latest" {
			t.Errorf("model = %q", body.Model)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p, _ := New(Config{GatewayURL: srv.URL, APIKey: "k"}, nil)
	raw, err := p.Complete(context.Background(), &provider.Request{
		Model:    "claude-3-5-sonnet",
		Messages: []api.Message{{Role: api.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(raw, `"ok"`) {
		t.Errorf("raw = %q", raw)
	}
}

func TestComplete_MissingKey(t *testing.T) {
	p, _ := New(Config{GatewayURL: "http://127.0.0.1:1"}, nil)
	if p.Configured() {
		t.Error("Configured() = true without key")
	}
	_, err := p.Complete(context.Background(), &provider.Request{Model: "gpt-4o"})
	if !errors.Is(err, provider.ErrMissingCredentials) {
		t.Errorf("error = %v, want ErrMissingCredentials", err)
	}
}

func TestComplete_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	p, _ := New(Config{GatewayURL: srv.URL, APIKey: "k"}, nil)
	_, err := p.Complete(context.Background(), &provider.Request{Model: "gpt-4o"})
	if err == nil || !strings.HasPrefix(err.Error(), "Puter (via G4F) Error: 502 nope") {
		t.Errorf("error = %v", err)
	}
}

func TestMapModel(t *testing.T) {
	tests := map[string]string{
		"gpt-4o-mini":       "gpt-4o-mini",
		"gpt-4o":            "gpt-4o",
		"claude-3.7":        "claude-3-7-sonnet-latest",
		"claude-3-5-sonnet": "claude-3-7-sonnet-latest",
		"deepseek-v3":       "deepseek-chat",
		"other":             "other",
	}
	for in, want := range tests {
		if got := MapModel(in); got != want {
			t.Errorf("MapModel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSupports(t *testing.T) {
	p, _ := New(Config{GatewayURL: "http://x"}, nil)
	if !p.Supports("gpt-4o-mini") || !p.Supports("puter-x") || p.Supports("llama3") {
		t.Error("Supports() mismatch")
	}
}
