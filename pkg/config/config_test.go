package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 1337 {
		t.Errorf("default server.port = %d, want 1337", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("default server.host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Gateway.Port != 1338 {
		t.Errorf("default gateway.port = %d, want 1338", cfg.Gateway.Port)
	}
	if !cfg.Gateway.Enabled {
		t.Error("gateway should be enabled by default")
	}
	if cfg.Gateway.Restart.Enabled {
		t.Error("gateway restart should be opt-in")
	}
	if cfg.Routing.DefaultModel != "gpt-4o-mini" {
		t.Errorf("default routing.default_model = %q", cfg.Routing.DefaultModel)
	}
	if got := cfg.Routing.Fallbacks["gpt-4"]; len(got) != 3 || got[0] != "gpt-4o" {
		t.Errorf("default fallbacks for gpt-4 = %v", got)
	}
	if cfg.Routing.GatewayWait != 5*time.Second {
		t.Errorf("default routing.gateway_wait = %v, want 5s", cfg.Routing.GatewayWait)
	}
	if cfg.Routing.LastResort != (LastResort{Provider: "pollinations", Model: "gpt-4o-mini"}) {
		t.Errorf("default last resort = %+v", cfg.Routing.LastResort)
	}
	if cfg.Connectivity.Concurrency != 3 || cfg.Connectivity.BatchDelay != 500*time.Millisecond {
		t.Errorf("default connectivity = %+v", cfg.Connectivity)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("default storage.type = %q, want \"memory\"", cfg.Storage.Type)
	}
	if cfg.Auth.Type != "none" {
		t.Errorf("default auth.type = %q, want \"none\"", cfg.Auth.Type)
	}
	if cfg.Logging.File != "clawbridge.log" {
		t.Errorf("default logging.file = %q", cfg.Logging.File)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
server:
  port: 9090
  host: 0.0.0.0
providers:
  groq:
    api_key: gsk-test
gateway:
  enabled: false
routing:
  default_model: llama3
  aliases:
    smart: gpt-4o
  force_provider:
    gpt-4o: groq
  models:
    llama3:
      provider: pollinations
  fallbacks:
    gpt-4o: [llama3]
  attempt_timeout: 30s
storage:
  type: sqlite
  sqlite:
    path: /tmp/cb.db
auth:
  type: apikey
  api_keys:
    - key: op-key
      subject: alice
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Providers.Groq.APIKey != "gsk-test" {
		t.Errorf("providers.groq.api_key = %q", cfg.Providers.Groq.APIKey)
	}
	if cfg.Providers.Groq.BaseURL == "" {
		t.Error("providers.groq.base_url default lost")
	}
	if cfg.Gateway.Enabled {
		t.Error("gateway.enabled = true, want false")
	}
	if cfg.Routing.Aliases["smart"] != "gpt-4o" {
		t.Errorf("aliases = %v", cfg.Routing.Aliases)
	}
	if cfg.Routing.ForceProvider["gpt-4o"] != "groq" {
		t.Errorf("force_provider = %v", cfg.Routing.ForceProvider)
	}
	if cfg.Routing.Models["llama3"].Provider != "pollinations" {
		t.Errorf("models = %v", cfg.Routing.Models)
	}
	if cfg.Routing.AttemptTimeout != 30*time.Second {
		t.Errorf("attempt_timeout = %v", cfg.Routing.AttemptTimeout)
	}
	if cfg.Storage.SQLite.Path != "/tmp/cb.db" {
		t.Errorf("storage.sqlite.path = %q", cfg.Storage.SQLite.Path)
	}
	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0].Subject != "alice" {
		t.Errorf("auth.api_keys = %+v", cfg.Auth.APIKeys)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CLAWBRIDGE_PORT", "4000")
	t.Setenv("GROQ_API_KEY", "gsk-env")
	t.Setenv("CLAWBRIDGE_GEMINI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "gem-env")
	t.Setenv("CLAWBRIDGE_GATEWAY_ENABLED", "false")
	t.Setenv("CLAWBRIDGE_FALLBACKS", `{"m":["a","b"]}`)

	tmpFile := writeTemp(t, "config-*.yaml", "server:\n  port: 9090\n")
	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("server.port = %d, want env override 4000", cfg.Server.Port)
	}
	if cfg.Providers.Groq.APIKey != "gsk-env" {
		t.Errorf("groq key = %q", cfg.Providers.Groq.APIKey)
	}
	if cfg.Providers.Gemini.APIKey != "gem-env" {
		t.Errorf("gemini key = %q", cfg.Providers.Gemini.APIKey)
	}
	if cfg.Gateway.Enabled {
		t.Error("gateway should be disabled by env")
	}
	if got := cfg.Routing.Fallbacks["m"]; len(got) != 2 {
		t.Errorf("fallbacks = %v", cfg.Routing.Fallbacks)
	}
}

func TestFileReference(t *testing.T) {
	secretFile := writeTemp(t, "secret-*.txt", "  gsk-from-file\n")
	keyFile := writeTemp(t, "key-*.txt", "op-from-file\n")
	yamlContent := `
providers:
  groq:
    api_key_file: ` + secretFile + `
auth:
  type: apikey
  api_keys:
    - key_file: ` + keyFile + `
      subject: ops
`
	tmpFile := writeTemp(t, "config-*.yaml", yamlContent)
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("CLAWBRIDGE_GROQ_API_KEY", "")

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Providers.Groq.APIKey != "gsk-from-file" {
		t.Errorf("groq key = %q, want trimmed file content", cfg.Providers.Groq.APIKey)
	}
	if cfg.Auth.APIKeys[0].Key != "op-from-file" {
		t.Errorf("auth key = %q", cfg.Auth.APIKeys[0].Key)
	}
}

func TestFileReferenceMissing(t *testing.T) {
	tmpFile := writeTemp(t, "config-*.yaml", "storage:\n  type: postgres\n  postgres:\n    dsn_file: /nonexistent/dsn\n")
	_, err := Load(tmpFile)
	if err == nil || !strings.Contains(err.Error(), "storage.postgres.dsn_file") {
		t.Fatalf("Load() error = %v, want dsn_file error", err)
	}
}

func TestFileDiscovery(t *testing.T) {
	envFile := writeTemp(t, "envconfig-*.yaml", "server:\n  port: 7000\n")
	t.Setenv("CLAWBRIDGE_CONFIG", envFile)
	t.Setenv("CLAWBRIDGE_PORT", "")

	if got := DiscoverConfigFile("explicit.yaml"); got != "explicit.yaml" {
		t.Errorf("explicit path = %q", got)
	}
	if got := DiscoverConfigFile(""); got != envFile {
		t.Errorf("env path = %q, want %q", got, envFile)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(CLAWBRIDGE_CONFIG) error: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("server.port = %d, want 7000", cfg.Server.Port)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port must be in 1..65535"},
		{"gateway port clash", func(c *Config) { c.Gateway.Port = c.Server.Port }, "gateway.port must differ"},
		{"gateway without command", func(c *Config) { c.Gateway.Command = "" }, "gateway.command is required"},
		{"disabled gateway skips checks", func(c *Config) { c.Gateway.Enabled = false; c.Gateway.Command = "" }, ""},
		{"unknown forced provider", func(c *Config) { c.Routing.ForceProvider = map[string]string{"m": "openai"} }, "routing.force_provider.m"},
		{"unknown model route", func(c *Config) { c.Routing.Models = map[string]ModelRoute{"m": {Provider: "x"}} }, "routing.models.m.provider"},
		{"no default model", func(c *Config) { c.Routing.DefaultModel = "" }, "routing.default_model is required"},
		{"zero concurrency", func(c *Config) { c.Connectivity.Concurrency = 0 }, "connectivity.concurrency"},
		{"invalid storage type", func(c *Config) { c.Storage.Type = "redis" }, "storage.type must be"},
		{"postgres without DSN", func(c *Config) { c.Storage.Type = "postgres" }, "storage.postgres.dsn"},
		{"apikey without keys", func(c *Config) { c.Auth.Type = "apikey" }, "auth.api_keys must not be empty"},
		{"jwt without secret", func(c *Config) { c.Auth.Type = "jwt" }, "auth.jwt.secret"},
		{"invalid auth type", func(c *Config) { c.Auth.Type = "oauth2" }, "auth.type must be"},
		{"tracing without endpoint", func(c *Config) { c.Observability.Tracing.Enabled = true }, "observability.tracing.endpoint"},
		{"restart without limit", func(c *Config) { c.Gateway.Restart.Enabled = true; c.Gateway.Restart.MaxRestarts = 0 }, "gateway.restart.max_restarts"},
		{"valid config", func(c *Config) {}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestHolderUpdate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	base := Defaults()
	h := NewHolder(&base, path)

	var notified *Config
	h.OnChange(func(c *Config) { notified = c })

	before := h.Current()
	next, err := h.Update(func(c *Config) {
		c.Routing.Fallbacks["gpt-4"] = []string{"llama3"}
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if notified != next || h.Current() != next {
		t.Error("new snapshot not published")
	}
	if got := before.Routing.Fallbacks["gpt-4"]; len(got) != 3 {
		t.Errorf("previous snapshot mutated: %v", got)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load(saved) error: %v", err)
	}
	if got := reloaded.Routing.Fallbacks["gpt-4"]; len(got) != 1 || got[0] != "llama3" {
		t.Errorf("persisted fallbacks = %v", got)
	}
}

func TestHolderUpdateRejectsInvalid(t *testing.T) {
	base := Defaults()
	h := NewHolder(&base, "")
	_, err := h.Update(func(c *Config) { c.Storage.Type = "redis" })
	if err == nil {
		t.Fatal("Update() expected validation error")
	}
	if h.Current().Storage.Type != "memory" {
		t.Error("invalid update was applied")
	}
}

func TestRedactedRoundTrip(t *testing.T) {
	cfg := Defaults()
	cfg.Providers.Groq.APIKey = "gsk-secret"
	cfg.Auth.APIKeys = []APIKeyConfig{{Key: "op-key", Subject: "ops"}}

	red := cfg.Redacted()
	if red.Providers.Groq.APIKey != RedactedValue {
		t.Errorf("groq key = %q, want redacted", red.Providers.Groq.APIKey)
	}
	if red.Auth.APIKeys[0].Key != RedactedValue {
		t.Errorf("operator key = %q, want redacted", red.Auth.APIKeys[0].Key)
	}
	if red.Providers.Gemini.APIKey != "" {
		t.Errorf("empty secret became %q", red.Providers.Gemini.APIKey)
	}
	if cfg.Providers.Groq.APIKey != "gsk-secret" {
		t.Error("Redacted modified the source config")
	}

	red.Routing.DefaultModel = "llama3"
	red.RestoreRedacted(&cfg)
	if red.Providers.Groq.APIKey != "gsk-secret" || red.Auth.APIKeys[0].Key != "op-key" {
		t.Errorf("secrets not restored: %q %q", red.Providers.Groq.APIKey, red.Auth.APIKeys[0].Key)
	}
	if red.Routing.DefaultModel != "llama3" {
		t.Error("edited field lost")
	}
}

func TestHolderWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("CLAWBRIDGE_PORT", "")
	if err := os.WriteFile(path, []byte("server:\n  port: 2000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHolder(cfg, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("server:\n  port: 2001\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for h.Current().Server.Port != 2001 {
		if time.Now().After(deadline) {
			t.Fatalf("port = %d after change, want 2001", h.Current().Server.Port)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error: %v", err)
	}
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 1337}
	if s.Addr() != "127.0.0.1:1337" {
		t.Errorf("Addr() = %q", s.Addr())
	}
}

// writeTemp creates a temporary file with the given content and returns its path.
func writeTemp(t *testing.T, pattern, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		t.Fatalf("writing temp file: %v", err)
	}
	f.Close()
	return f.Name()
}
