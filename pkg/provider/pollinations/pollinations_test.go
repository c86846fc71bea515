package pollinations

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/provider"
)

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["model"] != "llama" {
			t.Errorf("model = %v, want llama", body["model"])
		}
		if body["jsonMode"] != false {
			t.Errorf("jsonMode = %v", body["jsonMode"])
		}
		msgs := body["messages"].([]any)
		first := msgs[0].(map[string]any)
		if _, ok := first["content"]; !ok {
			t.Error("message without content key")
		}
		w.Write([]byte("plain reply"))
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL})
	raw, err := p.Complete(context.Background(), &provider.Request{
		Model:    "llama3",
		Messages: []api.Message{{Role: api.RoleAssistant}},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if raw != "plain reply" {
		t.Errorf("raw = %q", raw)
	}
}

func TestComplete_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("down"))
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), &provider.Request{Model: "openai"})
	if err == nil || err.Error() != "Pollinations Error 500: down" {
		t.Errorf("error = %v", err)
	}
}

func TestComplete_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	p := New(Config{BaseURL: "http://" + addr})
	_, err = p.Complete(context.Background(), &provider.Request{Model: "openai"})
	if err == nil || err.Error() != "Pollinations service is unreachable. Check your internet connection." {
		t.Errorf("error = %v", err)
	}
}

func TestSupports(t *testing.T) {
	p := New(Config{})
	tests := map[string]bool{
		"gpt-4o-mini": true,
		"openai":      true,
		"llama":       true,
		"llama3":      true,
		"gpt-4":       false,
	}
	for m, want := range tests {
		if got := p.Supports(m); got != want {
			t.Errorf("Supports(%q) = %v, want %v", m, got, want)
		}
	}
	if !p.Configured() {
		t.Error("open backend must be configured")
	}
}
