// Command clawbridge runs the ClawBridge gateway: an OpenAI-compatible
// chat endpoint that routes requests across free and low-cost backends,
// plus the management API.
//
// Configuration is read from a YAML file (see pkg/config) with environment
// overrides:
//
//	CLAWBRIDGE_CONFIG     - Config file path (or -config)
//	CLAWBRIDGE_PORT       - Listen port (default: 1337)
//	CLAWBRIDGE_LOG_LEVEL  - ERROR, WARN, INFO, DEBUG or TRACE
//	CLAWBRIDGE_DEBUG      - Comma-separated debug categories
//	GROQ_API_KEY, GEMINI_API_KEY, PUTER_API_KEY - Backend credentials
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nezumi0627/ClawBridge/pkg/config"
	"github.com/nezumi0627/ClawBridge/pkg/connectivity"
	"github.com/nezumi0627/ClawBridge/pkg/debug"
	"github.com/nezumi0627/ClawBridge/pkg/engine"
	"github.com/nezumi0627/ClawBridge/pkg/observability"
	"github.com/nezumi0627/ClawBridge/pkg/supervisor"
	transporthttp "github.com/nezumi0627/ClawBridge/pkg/transport/http"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("clawbridge", version)
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	holder := config.NewHolder(cfg, config.DiscoverConfigFile(configPath))

	var logFile *os.File
	if cfg.Logging.File != "" {
		if logFile, err = debug.OpenLogFile(cfg.Logging.File); err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer logFile.Close()
	}
	if logFile != nil {
		debug.Init(cfg.Logging.Debug, cfg.Logging.Level, logFile)
	} else {
		debug.Init(cfg.Logging.Debug, cfg.Logging.Level, nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, tracingConfig(cfg))
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer shutdownTracing(context.Background()) //nolint:errcheck // best effort on exit

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Storage.Type, err)
	}
	defer store.Close()
	slog.Info("storage enabled", "type", cfg.Storage.Type)

	var sup *supervisor.Supervisor
	if cfg.Gateway.Enabled {
		sup = supervisor.New(supervisorConfig(cfg))
	}

	reg, err := buildRegistry(cfg, sup)
	if err != nil {
		return err
	}

	eng, err := engine.New(reg, store, engineConfig(cfg))
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	runnerCfg := connectivity.Config{
		Defaults: connectivityOptions(cfg),
		Store:    store,
	}
	adminCfg := transporthttp.AdminConfig{
		Engine:      eng,
		Config:      holder,
		Version:     version,
		Started:     time.Now(),
		MaxBodySize: cfg.Server.MaxBodySize,
	}
	if sup != nil {
		runnerCfg.Gateway = sup
		adminCfg.Gateway = sup
	}
	runner := connectivity.New(eng, runnerCfg)
	if err := runner.Load(ctx); err != nil {
		slog.Warn("loading stored connectivity results failed", "error", err)
	}
	adminCfg.Runner = runner

	holder.OnChange(func(next *config.Config) {
		eng.SetConfig(engineConfig(next))
		slog.Info("routing configuration applied", "default_model", next.Routing.DefaultModel)
	})
	go func() {
		if err := holder.Watch(ctx); err != nil {
			slog.Warn("config watcher stopped", "error", err)
		}
	}()

	protect, err := buildProtect(cfg)
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(cfg.Server.Addr()),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithLogger(slog.Default()),
		transporthttp.WithModels(eng),
		transporthttp.WithAdmin(transporthttp.NewAdmin(adminCfg), protect),
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts, transporthttp.WithMetrics(cfg.Observability.Metrics.Path))
	}
	if sup != nil {
		opts = append(opts, transporthttp.WithReadiness(sup.Ready))
	}
	srv := transporthttp.NewServer(eng, opts...)

	if sup != nil {
		if err := sup.Start(ctx); err != nil {
			// The chat API still serves the remote backends.
			slog.Error("gateway failed to start", "error", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := sup.Stop(stopCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				slog.Warn("gateway stop", "error", err)
			}
		}()
	}

	slog.Info("clawbridge starting",
		"version", version,
		"addr", cfg.Server.Addr(),
		"backends", reg.Names(),
		"default_model", cfg.Routing.DefaultModel,
	)
	return srv.Run(ctx)
}
