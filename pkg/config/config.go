// Package config provides unified configuration for the ClawBridge gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (CLAWBRIDGE_ prefix and provider credential names)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
//
// A running process keeps the active configuration in a [Holder], which
// swaps whole snapshots on update or file change.
package config

import "time"

// Config holds all configuration for the ClawBridge gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Providers     ProvidersConfig     `yaml:"providers" json:"providers"`
	Gateway       GatewayConfig       `yaml:"gateway" json:"gateway"`
	Routing       RoutingConfig       `yaml:"routing" json:"routing"`
	Connectivity  ConnectivityConfig  `yaml:"connectivity" json:"connectivity"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Auth          AuthConfig          `yaml:"auth" json:"auth"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host"`                   // default: "127.0.0.1"
	Port         int           `yaml:"port" json:"port"`                   // default: 1337
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`   // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"` // default: 180s
	MaxBodySize  int64         `yaml:"max_body_size" json:"max_body_size"` // default: 50 MB
}

// ProvidersConfig holds credentials and endpoints for remote backends.
type ProvidersConfig struct {
	Groq         CredentialConfig `yaml:"groq" json:"groq"`
	Gemini       CredentialConfig `yaml:"gemini" json:"gemini"`
	Puter        CredentialConfig `yaml:"puter" json:"puter"`
	Pollinations EndpointConfig   `yaml:"pollinations" json:"pollinations"`
	Timeout      time.Duration    `yaml:"timeout" json:"timeout"` // default: 120s
}

// CredentialConfig describes an authenticated backend.
type CredentialConfig struct {
	APIKey     string `yaml:"api_key" json:"api_key,omitempty"`
	APIKeyFile string `yaml:"api_key_file" json:"api_key_file,omitempty"` // _file variant for api_key
	BaseURL    string `yaml:"base_url" json:"base_url,omitempty"`
}

// EndpointConfig describes an open backend.
type EndpointConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url,omitempty"`
}

// GatewayConfig describes the locally spawned inference gateway.
type GatewayConfig struct {
	Enabled               bool          `yaml:"enabled" json:"enabled"`                 // default: true
	Command               string        `yaml:"command" json:"command"`                 // default: "python3"
	Args                  []string      `yaml:"args" json:"args"`                       // default: ["g4f_server.py"]
	Dir                   string        `yaml:"dir" json:"dir"`                         // working directory
	Port                  int           `yaml:"port" json:"port"`                       // default: 1338
	ReadyMarkers          []string      `yaml:"ready_markers" json:"ready_markers"`     // stdout listening markers
	HealthInterval        time.Duration `yaml:"health_interval" json:"health_interval"` // default: 1s
	HealthTimeout         time.Duration `yaml:"health_timeout" json:"health_timeout"`   // default: 2s
	MaxHealthAttempts     int           `yaml:"max_health_attempts" json:"max_health_attempts"`
	ModelsURL             string        `yaml:"models_url" json:"models_url"`
	ModelsRefreshInterval time.Duration `yaml:"models_refresh_interval" json:"models_refresh_interval"`
	Restart               RestartConfig `yaml:"restart" json:"restart"`
}

// RestartConfig controls automatic restarts of a crashed gateway.
type RestartConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"` // default: false
	InitialInterval time.Duration `yaml:"initial_interval" json:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval" json:"max_interval"`
	MaxRestarts     int           `yaml:"max_restarts" json:"max_restarts"` // breaker threshold
}

// RoutingConfig holds model resolution and fallback policy.
type RoutingConfig struct {
	DefaultModel string              `yaml:"default_model" json:"default_model"` // default: "gpt-4o-mini"
	Aliases      map[string]string   `yaml:"aliases" json:"aliases,omitempty"`
	Fallbacks    map[string][]string `yaml:"fallbacks" json:"fallbacks,omitempty"`

	// ForceProvider pins a model to a backend on behalf of an integrating
	// client. It takes precedence over Models.
	ForceProvider map[string]string     `yaml:"force_provider" json:"force_provider,omitempty"`
	Models        map[string]ModelRoute `yaml:"models" json:"models,omitempty"`

	GatewayWait     time.Duration `yaml:"gateway_wait" json:"gateway_wait"`         // default: 5s
	AttemptTimeout  time.Duration `yaml:"attempt_timeout" json:"attempt_timeout"`   // default: 60s
	FailureCooldown time.Duration `yaml:"failure_cooldown" json:"failure_cooldown"` // default: 0 (off)
	LastResort      LastResort    `yaml:"last_resort" json:"last_resort"`
}

// ModelRoute pins a model to a backend.
type ModelRoute struct {
	Provider string `yaml:"provider" json:"provider"`
}

// LastResort names the backend/model pair tried after a chain is exhausted.
type LastResort struct {
	Provider string `yaml:"provider" json:"provider"` // default: "pollinations"
	Model    string `yaml:"model" json:"model"`       // default: "gpt-4o-mini"
}

// ConnectivityConfig holds batch connectivity test settings.
type ConnectivityConfig struct {
	Concurrency int           `yaml:"concurrency" json:"concurrency"` // default: 3
	BatchDelay  time.Duration `yaml:"batch_delay" json:"batch_delay"` // default: 500ms
	Prompt      string        `yaml:"prompt" json:"prompt"`
}

// StorageConfig holds persistence settings for connectivity results and
// failure cooldowns.
type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"` // "memory", "sqlite", or "postgres", default: "memory"
	SQLite   SQLiteConfig   `yaml:"sqlite" json:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" json:"path"` // default: "clawbridge.db"
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn" json:"dsn,omitempty"`
	DSNFile        string `yaml:"dsn_file" json:"dsn_file,omitempty"` // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns" json:"max_conns"`         // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start" json:"migrate_on_start"`
}

// AuthConfig protects the management API.
type AuthConfig struct {
	Type    string         `yaml:"type" json:"type"` // "none", "apikey", "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys" json:"api_keys,omitempty"`
	JWT     JWTConfig      `yaml:"jwt" json:"jwt"`
}

// APIKeyConfig describes a single operator API key.
type APIKeyConfig struct {
	Key     string `yaml:"key" json:"key,omitempty"`
	KeyFile string `yaml:"key_file" json:"key_file,omitempty"` // _file variant for key
	Subject string `yaml:"subject" json:"subject"`
}

// JWTConfig describes HS256 operator tokens.
type JWTConfig struct {
	Secret     string `yaml:"secret" json:"secret,omitempty"`
	SecretFile string `yaml:"secret_file" json:"secret_file,omitempty"`
	Issuer     string `yaml:"issuer" json:"issuer,omitempty"`
	Audience   string `yaml:"audience" json:"audience,omitempty"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"` // default: true
	Path    string `yaml:"path" json:"path"`       // default: "/metrics"
}

// TracingConfig holds OpenTelemetry export settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Endpoint    string `yaml:"endpoint" json:"endpoint"` // host:port of an OTLP/HTTP collector
	ServiceName string `yaml:"service_name" json:"service_name"`
	Insecure    bool   `yaml:"insecure" json:"insecure"`
}

// LoggingConfig holds process log settings.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"` // default: "info"
	File  string `yaml:"file" json:"file"`   // default: "clawbridge.log"
	Debug string `yaml:"debug" json:"debug"` // comma-separated debug categories
}

// DefaultModelsURL is the curated list of gateway models known to work.
const DefaultModelsURL = "https://raw.githubusercontent.com/maruf009sultan/g4f-working/refs/heads/main/working/models.txt"

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         1337,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 180 * time.Second,
			MaxBodySize:  50 << 20,
		},
		Providers: ProvidersConfig{
			Groq:         CredentialConfig{BaseURL: "https://api.groq.com/openai/v1"},
			Gemini:       CredentialConfig{BaseURL: "https://generativelanguage.googleapis.com"},
			Pollinations: EndpointConfig{BaseURL: "https://text.pollinations.ai"},
			Timeout:      120 * time.Second,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Command: "python3",
			Args:    []string{"g4f_server.py"},
			Port:    1338,
			ReadyMarkers: []string{
				"Uvicorn running",
				"Starting server",
				"Application startup complete",
				"127.0.0.1:",
				"Uvicorn",
			},
			HealthInterval:        time.Second,
			HealthTimeout:         2 * time.Second,
			MaxHealthAttempts:     60,
			ModelsURL:             DefaultModelsURL,
			ModelsRefreshInterval: 10 * time.Minute,
			Restart: RestartConfig{
				InitialInterval: 2 * time.Second,
				MaxInterval:     time.Minute,
				MaxRestarts:     5,
			},
		},
		Routing: RoutingConfig{
			DefaultModel: "gpt-4o-mini",
			Fallbacks: map[string][]string{
				"gpt-4":         {"gpt-4o", "gpt-4o-mini", "llama3"},
				"gpt-4o":        {"gpt-4o-mini", "llama3"},
				"gpt-3.5-turbo": {"gpt-4o-mini", "llama3"},
			},
			GatewayWait:    5 * time.Second,
			AttemptTimeout: 60 * time.Second,
			LastResort: LastResort{
				Provider: "pollinations",
				Model:    "gpt-4o-mini",
			},
		},
		Connectivity: ConnectivityConfig{
			Concurrency: 3,
			BatchDelay:  500 * time.Millisecond,
			Prompt:      `Say "Hello" in one word. Just respond with the word, nothing else.`,
		},
		Storage: StorageConfig{
			Type:   "memory",
			SQLite: SQLiteConfig{Path: "clawbridge.db"},
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			Tracing: TracingConfig{
				ServiceName: "clawbridge",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "clawbridge.log",
		},
	}
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}
