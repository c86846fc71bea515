package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nezumi0627/ClawBridge/pkg/auth"
	"github.com/nezumi0627/ClawBridge/pkg/auth/apikey"
	"github.com/nezumi0627/ClawBridge/pkg/auth/jwt"
	"github.com/nezumi0627/ClawBridge/pkg/auth/noop"
	"github.com/nezumi0627/ClawBridge/pkg/config"
	"github.com/nezumi0627/ClawBridge/pkg/connectivity"
	"github.com/nezumi0627/ClawBridge/pkg/engine"
	"github.com/nezumi0627/ClawBridge/pkg/observability"
	"github.com/nezumi0627/ClawBridge/pkg/provider"
	"github.com/nezumi0627/ClawBridge/pkg/provider/gateway"
	"github.com/nezumi0627/ClawBridge/pkg/provider/gemini"
	"github.com/nezumi0627/ClawBridge/pkg/provider/groq"
	"github.com/nezumi0627/ClawBridge/pkg/provider/pollinations"
	"github.com/nezumi0627/ClawBridge/pkg/provider/puter"
	"github.com/nezumi0627/ClawBridge/pkg/storage"
	"github.com/nezumi0627/ClawBridge/pkg/storage/memory"
	"github.com/nezumi0627/ClawBridge/pkg/storage/postgres"
	"github.com/nezumi0627/ClawBridge/pkg/storage/sqlite"
	"github.com/nezumi0627/ClawBridge/pkg/supervisor"
)

// engineConfig maps the routing section onto the engine.
func engineConfig(cfg *config.Config) engine.Config {
	models := make(map[string]string, len(cfg.Routing.Models))
	for m, route := range cfg.Routing.Models {
		models[m] = route.Provider
	}
	return engine.Config{
		DefaultModel:       cfg.Routing.DefaultModel,
		Aliases:            cfg.Routing.Aliases,
		Fallbacks:          cfg.Routing.Fallbacks,
		ForceProvider:      cfg.Routing.ForceProvider,
		Models:             models,
		GatewayWait:        cfg.Routing.GatewayWait,
		AttemptTimeout:     cfg.Routing.AttemptTimeout,
		FailureCooldown:    cfg.Routing.FailureCooldown,
		LastResortProvider: cfg.Routing.LastResort.Provider,
		LastResortModel:    cfg.Routing.LastResort.Model,
	}
}

func connectivityOptions(cfg *config.Config) connectivity.Options {
	return connectivity.Options{
		Concurrency: cfg.Connectivity.Concurrency,
		BatchDelay:  cfg.Connectivity.BatchDelay,
		Prompt:      cfg.Connectivity.Prompt,
	}
}

func tracingConfig(cfg *config.Config) observability.TracingConfig {
	t := cfg.Observability.Tracing
	return observability.TracingConfig{
		Enabled:     t.Enabled,
		Endpoint:    t.Endpoint,
		ServiceName: t.ServiceName,
		Insecure:    t.Insecure,
	}
}

// supervisorConfig describes the gateway child process. Provider keys are
// passed through the environment so the gateway can use them too.
func supervisorConfig(cfg *config.Config) supervisor.Config {
	g := cfg.Gateway
	var env []string
	for name, val := range map[string]string{
		"PUTER_API_KEY":  cfg.Providers.Puter.APIKey,
		"GOOGLE_API_KEY": cfg.Providers.Gemini.APIKey,
		"GROQ_API_KEY":   cfg.Providers.Groq.APIKey,
	} {
		if val != "" {
			env = append(env, name+"="+val)
		}
	}
	return supervisor.Config{
		Command:               g.Command,
		Args:                  g.Args,
		Dir:                   g.Dir,
		Env:                   env,
		Port:                  g.Port,
		ReadyMarkers:          g.ReadyMarkers,
		HealthInterval:        g.HealthInterval,
		HealthTimeout:         g.HealthTimeout,
		MaxHealthAttempts:     g.MaxHealthAttempts,
		ModelsURL:             g.ModelsURL,
		ModelsRefreshInterval: g.ModelsRefreshInterval,
		Restart: supervisor.RestartConfig{
			Enabled:         g.Restart.Enabled,
			InitialInterval: g.Restart.InitialInterval,
			MaxInterval:     g.Restart.MaxInterval,
			MaxRestarts:     g.Restart.MaxRestarts,
		},
	}
}

// buildRegistry creates every backend. sup is nil when the gateway is
// disabled, in which case the gateway-hosted backends are left out.
func buildRegistry(cfg *config.Config, sup *supervisor.Supervisor) (*provider.Registry, error) {
	p := cfg.Providers
	reg := provider.NewRegistry(
		groq.New(groq.Config{BaseURL: p.Groq.BaseURL, APIKey: p.Groq.APIKey, Timeout: p.Timeout}),
		gemini.New(gemini.Config{BaseURL: p.Gemini.BaseURL, APIKey: p.Gemini.APIKey, Timeout: p.Timeout}),
		pollinations.New(pollinations.Config{BaseURL: p.Pollinations.BaseURL}),
	)
	if sup == nil {
		return reg, nil
	}

	gw, err := gateway.New(gateway.Config{BaseURL: sup.BaseURL(), Timeout: p.Timeout}, sup)
	if err != nil {
		return nil, fmt.Errorf("creating gateway backend: %w", err)
	}
	reg.Register(gw)

	pt, err := puter.New(puter.Config{GatewayURL: sup.BaseURL(), APIKey: p.Puter.APIKey, Timeout: p.Timeout}, sup.Ready)
	if err != nil {
		return nil, fmt.Errorf("creating puter backend: %w", err)
	}
	reg.Register(pt)
	return reg, nil
}

// openStore opens the configured result and failure store.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.New(ctx, cfg.Storage.SQLite.Path)
	case "postgres":
		pg := cfg.Storage.Postgres
		return postgres.New(ctx, postgres.Config{
			DSN:            pg.DSN,
			MaxConns:       pg.MaxConns,
			MigrateOnStart: pg.MigrateOnStart,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

// buildProtect returns the middleware guarding the management API.
func buildProtect(cfg *config.Config) (func(http.Handler) http.Handler, error) {
	chain := &auth.AuthChain{DefaultDecision: auth.No}
	switch cfg.Auth.Type {
	case "", "none":
		chain.Authenticators = []auth.Authenticator{&noop.Authenticator{}}
	case "apikey":
		entries := make([]apikey.OperatorKey, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			entries = append(entries, apikey.OperatorKey{Key: k.Key, Subject: k.Subject})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(entries)}
	case "jwt":
		a, err := jwt.New(jwt.Config{
			Secret:   []byte(cfg.Auth.JWT.Secret),
			Issuer:   cfg.Auth.JWT.Issuer,
			Audience: cfg.Auth.JWT.Audience,
		})
		if err != nil {
			return nil, err
		}
		chain.Authenticators = []auth.Authenticator{a}
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}
	slog.Info("management API auth", slog.String("type", cfg.Auth.Type))
	return auth.Middleware(chain), nil
}
