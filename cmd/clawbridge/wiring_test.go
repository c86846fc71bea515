package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/nezumi0627/ClawBridge/pkg/config"
	"github.com/nezumi0627/ClawBridge/pkg/supervisor"
)

func TestEngineConfigMapsRouting(t *testing.T) {
	cfg := config.Defaults()
	cfg.Routing.Models = map[string]config.ModelRoute{"llama3": {Provider: "groq"}}
	cfg.Routing.FailureCooldown = time.Minute

	ec := engineConfig(&cfg)
	if ec.DefaultModel != cfg.Routing.DefaultModel {
		t.Errorf("DefaultModel = %q", ec.DefaultModel)
	}
	if ec.Models["llama3"] != "groq" {
		t.Errorf("Models = %v", ec.Models)
	}
	if ec.LastResortProvider != "pollinations" || ec.LastResortModel != "gpt-4o-mini" {
		t.Errorf("last resort = %s/%s", ec.LastResortProvider, ec.LastResortModel)
	}
	if ec.FailureCooldown != time.Minute {
		t.Errorf("FailureCooldown = %v", ec.FailureCooldown)
	}
	if len(ec.Fallbacks["gpt-4"]) != 3 {
		t.Errorf("Fallbacks = %v", ec.Fallbacks)
	}
}

func TestSupervisorConfigPassesCredentials(t *testing.T) {
	cfg := config.Defaults()
	cfg.Providers.Puter.APIKey = "puter-key"

	sc := supervisorConfig(&cfg)
	if !slices.Contains(sc.Env, "PUTER_API_KEY=puter-key") {
		t.Errorf("Env = %v", sc.Env)
	}
	for _, kv := range sc.Env {
		if kv == "GROQ_API_KEY=" {
			t.Error("empty credentials must not be exported")
		}
	}
	if sc.Port != cfg.Gateway.Port {
		t.Errorf("Port = %d", sc.Port)
	}
}

func TestBuildRegistry(t *testing.T) {
	cfg := config.Defaults()

	reg, err := buildRegistry(&cfg, nil)
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}
	if got := reg.Names(); len(got) != 3 {
		t.Errorf("without gateway: %v", got)
	}

	sup := supervisor.New(supervisorConfig(&cfg))
	reg, err = buildRegistry(&cfg, sup)
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}
	names := reg.Names()
	for _, want := range []string{"g4f", "puter", "groq", "gemini", "pollinations"} {
		if !slices.Contains(names, want) {
			t.Errorf("registry missing %q: %v", want, names)
		}
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults()

	s, err := openStore(ctx, &cfg)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	s.Close()

	cfg.Storage.Type = "sqlite"
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "results.db")
	s, err = openStore(ctx, &cfg)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	s.Close()

	cfg.Storage.Type = "redis"
	if _, err := openStore(ctx, &cfg); err == nil {
		t.Error("expected error for unknown storage type")
	}
}

func TestBuildProtect(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	tests := []struct {
		name   string
		mutate func(*config.Config)
		header string
		want   int
	}{
		{"none allows", func(*config.Config) {}, "", http.StatusOK},
		{"apikey rejects missing key", func(c *config.Config) {
			c.Auth.Type = "apikey"
			c.Auth.APIKeys = []config.APIKeyConfig{{Key: "k1", Subject: "ops"}}
		}, "", http.StatusUnauthorized},
		{"apikey accepts key", func(c *config.Config) {
			c.Auth.Type = "apikey"
			c.Auth.APIKeys = []config.APIKeyConfig{{Key: "k1", Subject: "ops"}}
		}, "Bearer k1", http.StatusOK},
		{"jwt rejects garbage", func(c *config.Config) {
			c.Auth.Type = "jwt"
			c.Auth.JWT.Secret = "s3cret"
		}, "Bearer not-a-token", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(&cfg)
			protect, err := buildProtect(&cfg)
			if err != nil {
				t.Fatalf("buildProtect: %v", err)
			}
			req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protect(ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestBuildProtectRejectsUnknownType(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.Type = "oauth"
	if _, err := buildProtect(&cfg); err == nil {
		t.Error("expected error for unknown auth type")
	}
}
