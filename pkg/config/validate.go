package config

import (
	"errors"
	"fmt"
)

// KnownProviders lists the backend names a route may pin.
var KnownProviders = []string{"groq", "gemini", "g4f", "puter", "pollinations"}

func isKnownProvider(name string) bool {
	for _, p := range KnownProviders {
		if p == name {
			return true
		}
	}
	return false
}

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}

	if c.Gateway.Enabled {
		if c.Gateway.Command == "" {
			errs = append(errs, fmt.Errorf("gateway.command is required when gateway.enabled is true"))
		}
		if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
			errs = append(errs, fmt.Errorf("gateway.port must be in 1..65535, got %d", c.Gateway.Port))
		}
		if c.Gateway.Port == c.Server.Port {
			errs = append(errs, fmt.Errorf("gateway.port must differ from server.port"))
		}
		if c.Gateway.HealthInterval <= 0 {
			errs = append(errs, fmt.Errorf("gateway.health_interval must be > 0"))
		}
		if c.Gateway.MaxHealthAttempts <= 0 {
			errs = append(errs, fmt.Errorf("gateway.max_health_attempts must be > 0"))
		}
	}
	if c.Gateway.Restart.Enabled && c.Gateway.Restart.MaxRestarts <= 0 {
		errs = append(errs, fmt.Errorf("gateway.restart.max_restarts must be > 0 when restart is enabled"))
	}

	if c.Routing.DefaultModel == "" {
		errs = append(errs, fmt.Errorf("routing.default_model is required"))
	}
	for model, p := range c.Routing.ForceProvider {
		if !isKnownProvider(p) {
			errs = append(errs, fmt.Errorf("routing.force_provider.%s: unknown provider %q", model, p))
		}
	}
	for model, r := range c.Routing.Models {
		if !isKnownProvider(r.Provider) {
			errs = append(errs, fmt.Errorf("routing.models.%s.provider: unknown provider %q", model, r.Provider))
		}
	}
	if c.Routing.AttemptTimeout <= 0 {
		errs = append(errs, fmt.Errorf("routing.attempt_timeout must be > 0"))
	}
	if c.Routing.GatewayWait < 0 {
		errs = append(errs, fmt.Errorf("routing.gateway_wait must be >= 0"))
	}
	if c.Routing.LastResort.Provider != "" && !isKnownProvider(c.Routing.LastResort.Provider) {
		errs = append(errs, fmt.Errorf("routing.last_resort.provider: unknown provider %q", c.Routing.LastResort.Provider))
	}

	if c.Connectivity.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("connectivity.concurrency must be > 0, got %d", c.Connectivity.Concurrency))
	}

	switch c.Storage.Type {
	case "memory":
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("storage.sqlite.path is required when storage.type is \"sqlite\""))
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"sqlite\", or \"postgres\", got %q", c.Storage.Type))
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
	case "jwt":
		if c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.secret or auth.jwt.secret_file is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	if c.Observability.Tracing.Enabled && c.Observability.Tracing.Endpoint == "" {
		errs = append(errs, fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled"))
	}

	return errors.Join(errs...)
}
