package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, CLAWBRIDGE_CONFIG env, ./config.yaml, /etc/clawbridge/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := DiscoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// DiscoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. CLAWBRIDGE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/clawbridge/config.yaml
//
// Returns empty string if no config file is found.
func DiscoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("CLAWBRIDGE_CONFIG"); envPath != "" {
		return envPath
	}
	candidates := []string{
		"config.yaml",
		"/etc/clawbridge/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Save writes cfg to path as YAML. Resolved secrets are written back only
// when they were not sourced from a _file reference.
func Save(path string, cfg *Config) error {
	out := *cfg
	if out.Providers.Groq.APIKeyFile != "" {
		out.Providers.Groq.APIKey = ""
	}
	if out.Providers.Gemini.APIKeyFile != "" {
		out.Providers.Gemini.APIKey = ""
	}
	if out.Providers.Puter.APIKeyFile != "" {
		out.Providers.Puter.APIKey = ""
	}
	if out.Storage.Postgres.DSNFile != "" {
		out.Storage.Postgres.DSN = ""
	}
	if out.Auth.JWT.SecretFile != "" {
		out.Auth.JWT.Secret = ""
	}
	if len(out.Auth.APIKeys) > 0 {
		keys := make([]APIKeyConfig, len(out.Auth.APIKeys))
		copy(keys, out.Auth.APIKeys)
		for i := range keys {
			if keys[i].KeyFile != "" {
				keys[i].Key = ""
			}
		}
		out.Auth.APIKeys = keys
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// applyEnvOverrides maps environment variables to config fields. Provider
// credentials also honor their conventional unprefixed names.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLAWBRIDGE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CLAWBRIDGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := firstEnv("CLAWBRIDGE_GROQ_API_KEY", "GROQ_API_KEY"); v != "" {
		cfg.Providers.Groq.APIKey = v
	}
	if v := firstEnv("CLAWBRIDGE_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"); v != "" {
		cfg.Providers.Gemini.APIKey = v
	}
	if v := firstEnv("CLAWBRIDGE_PUTER_API_KEY", "PUTER_API_KEY"); v != "" {
		cfg.Providers.Puter.APIKey = v
	}
	if v := os.Getenv("CLAWBRIDGE_GATEWAY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Gateway.Enabled = b
		}
	}
	if v := os.Getenv("CLAWBRIDGE_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("CLAWBRIDGE_DEFAULT_MODEL"); v != "" {
		cfg.Routing.DefaultModel = v
	}
	if v := os.Getenv("CLAWBRIDGE_ATTEMPT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Routing.AttemptTimeout = d
		}
	}
	if v := os.Getenv("CLAWBRIDGE_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("CLAWBRIDGE_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}

	// CLAWBRIDGE_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("CLAWBRIDGE_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err == nil && len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}

	// CLAWBRIDGE_FALLBACKS: JSON object of model -> fallback list.
	if v := os.Getenv("CLAWBRIDGE_FALLBACKS"); v != "" {
		var fb map[string][]string
		if err := json.Unmarshal([]byte(v), &fb); err == nil {
			cfg.Routing.Fallbacks = fb
		}
	}

	if v := os.Getenv("CLAWBRIDGE_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	creds := []struct {
		path string
		c    *CredentialConfig
	}{
		{"providers.groq.api_key_file", &cfg.Providers.Groq},
		{"providers.gemini.api_key_file", &cfg.Providers.Gemini},
		{"providers.puter.api_key_file", &cfg.Providers.Puter},
	}
	for _, cr := range creds {
		if cr.c.APIKeyFile != "" && cr.c.APIKey == "" {
			val, err := readSecretFile(cr.c.APIKeyFile)
			if err != nil {
				return fmt.Errorf("%s: %w", cr.path, err)
			}
			cr.c.APIKey = val
		}
	}

	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	if cfg.Auth.JWT.SecretFile != "" && cfg.Auth.JWT.Secret == "" {
		val, err := readSecretFile(cfg.Auth.JWT.SecretFile)
		if err != nil {
			return fmt.Errorf("auth.jwt.secret_file: %w", err)
		}
		cfg.Auth.JWT.Secret = val
	}

	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
