package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/debug"
	"github.com/nezumi0627/ClawBridge/pkg/normalize"
	"github.com/nezumi0627/ClawBridge/pkg/observability"
	"github.com/nezumi0627/ClawBridge/pkg/polyfill"
	"github.com/nezumi0627/ClawBridge/pkg/provider"
	"github.com/nezumi0627/ClawBridge/pkg/storage"
)

// lastResortSuffix marks results produced by the last-resort attempt.
const lastResortSuffix = " (fallback)"

// Engine routes chat requests across the registered backends.
type Engine struct {
	registry *provider.Registry
	failures storage.FailureStore
	cfg      atomic.Pointer[Config]
	rec      recorder
}

// New creates a new Engine. The registry must not be nil. failures may be
// nil, which disables cooldown demotion.
func New(reg *provider.Registry, failures storage.FailureStore, cfg Config) (*Engine, error) {
	if reg == nil {
		return nil, fmt.Errorf("engine: registry must not be nil")
	}
	e := &Engine{registry: reg, failures: failures}
	e.cfg.Store(&cfg)
	return e, nil
}

// Config returns the routing configuration in effect.
func (e *Engine) Config() Config {
	return *e.cfg.Load()
}

// SetConfig replaces the routing configuration for subsequent requests.
func (e *Engine) SetConfig(cfg Config) {
	e.cfg.Store(&cfg)
}

// Registry returns the backend registry.
func (e *Engine) Registry() *provider.Registry {
	return e.registry
}

// Stats returns a snapshot of the request counters.
func (e *Engine) Stats() Stats {
	return e.rec.snapshot()
}

// History returns the most recent answered requests, newest first.
func (e *Engine) History() []HistoryEntry {
	return e.rec.entries()
}

// Handle answers req by walking its fallback chain.
func (e *Engine) Handle(ctx context.Context, req *api.ChatRequest) (*api.Result, error) {
	cfg := e.Config()
	e.rec.request()

	messages := req.Conversation()
	if len(messages) == 0 {
		return nil, api.NewInvalidRequestError("messages", "messages array is required and cannot be empty")
	}

	requested := req.Model
	if requested == "" {
		requested = cfg.defaultModel()
	}
	var pins api.ProviderPins
	if req.Routing != nil {
		pins = req.Routing.ForceProvider
	}
	model := ResolveAlias(requested, req.Routing, cfg.Aliases)
	chain := e.demote(ctx, cfg, BuildChain(model, cfg.Fallbacks[model]), pins)

	var lastErr error
	for i, m := range chain {
		b, err := e.Route(cfg, m, pins)
		if err == nil {
			slog.Info("routing request", slog.String("model", m), slog.String("provider", b.Name()))
			var res *api.Result
			res, err = e.attempt(ctx, cfg, b, m, messages, req.Tools, req.Provider)
			if err == nil {
				e.clearFailure(ctx, b.Name(), m)
				res.FallbacksUsed = i
				e.finish(res, messages)
				return res, nil
			}
			if !isRetryable(err) {
				slog.Error("dependency error", slog.String("provider", b.Name()), slog.String("error", err.Error()))
				e.rec.failure()
				return nil, err
			}
			e.markFailure(ctx, b.Name(), m)
		}
		e.rec.failure()
		lastErr = err
		slog.Warn("attempt failed",
			slog.String("model", m),
			slog.String("error", debug.Truncate(err.Error(), 100)),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if i+1 < len(chain) {
			debug.Log("engine", "trying next in chain", "model", chain[i+1])
		}
	}

	res, err := e.lastResort(ctx, cfg, messages)
	if err == nil {
		res.FallbacksUsed = len(chain)
		e.finish(res, messages)
		return res, nil
	}
	if lastErr == nil {
		lastErr = err
	}
	return nil, &ChainError{Attempts: len(chain), Last: lastErr}
}

// lastResort tries the configured baseline pair once.
func (e *Engine) lastResort(ctx context.Context, cfg Config, messages []api.Message) (*api.Result, error) {
	if cfg.LastResortProvider == "" {
		return nil, fmt.Errorf("%w: no last resort configured", ErrNoBackend)
	}
	b, ok := e.registry.Get(cfg.LastResortProvider)
	if !ok {
		return nil, fmt.Errorf("%w: last resort %q is not registered", ErrNoBackend, cfg.LastResortProvider)
	}

	slog.Warn("all chain models failed, attempting last resort",
		slog.String("provider", b.Name()),
		slog.String("model", cfg.LastResortModel),
	)
	res, err := e.attempt(ctx, cfg, b, cfg.LastResortModel, messages, nil, "")
	if err != nil {
		slog.Error("last resort failed", slog.String("error", err.Error()))
		return nil, err
	}
	res.Provider = b.Name() + lastResortSuffix
	return res, nil
}

// attempt performs one completion against b and normalizes the reply.
func (e *Engine) attempt(ctx context.Context, cfg Config, b provider.Backend, model string, messages []api.Message, tools []api.ToolDefinition, hint string) (_ *api.Result, err error) {
	name := b.Name()
	ctx, span := observability.StartSpan(ctx, "engine.attempt",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", name),
			attribute.String("llm.model", model),
			attribute.Int("llm.tools_count", len(tools)),
		),
	)
	defer func() { observability.EndSpan(span, err) }()

	if !provider.IsReady(b) && !e.waitReady(ctx, cfg, b) {
		observability.BackendAttemptsTotal.WithLabelValues(name, model, observability.OutcomeNotReady).Inc()
		return nil, &notReadyError{backend: b.Info().DisplayName}
	}

	req := &provider.Request{
		Model:        model,
		Messages:     messages,
		Tools:        tools,
		ProviderHint: hint,
	}
	if b.Info().NeedsPolyfill {
		req.Messages = polyfill.Apply(messages, tools)
	}

	actx := ctx
	if cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, cfg.AttemptTimeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := b.Complete(actx, req)
	latency := time.Since(start)
	observability.BackendLatency.WithLabelValues(name, model).Observe(latency.Seconds())

	if err != nil {
		observability.BackendAttemptsTotal.WithLabelValues(name, model, observability.OutcomeError).Inc()
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		observability.BackendAttemptsTotal.WithLabelValues(name, model, observability.OutcomeEmpty).Inc()
		return nil, fmt.Errorf("%s: %w", name, provider.ErrEmptyResponse)
	}

	parsed := normalize.Parse(raw, &normalize.Meta{Provider: name, Model: model, Latency: latency})
	if parsed.Empty() {
		observability.BackendAttemptsTotal.WithLabelValues(name, model, observability.OutcomeFiltered).Inc()
		return nil, ErrFiltered
	}
	observability.BackendAttemptsTotal.WithLabelValues(name, model, observability.OutcomeSuccess).Inc()

	return &api.Result{
		ID:        api.NewCompletionID(),
		Created:   start.Unix(),
		Model:     model,
		Provider:  name,
		Content:   parsed.Content,
		ToolCalls: parsed.ToolCalls,
	}, nil
}

// waitReady polls b's readiness until cfg.GatewayWait elapses.
func (e *Engine) waitReady(ctx context.Context, cfg Config, b provider.Backend) bool {
	if cfg.GatewayWait <= 0 {
		return false
	}
	debug.Log("engine", "waiting for backend readiness", "backend", b.Name(), "wait", cfg.GatewayWait)

	deadline := time.NewTimer(cfg.GatewayWait)
	defer deadline.Stop()
	tick := time.NewTicker(cfg.waitStep())
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return provider.IsReady(b)
		case <-tick.C:
			if provider.IsReady(b) {
				return true
			}
		}
	}
}

// finish records a successful result.
func (e *Engine) finish(res *api.Result, messages []api.Message) {
	if res.FallbacksUsed > 0 {
		observability.FallbacksTotal.Add(float64(res.FallbacksUsed))
	}
	preview := "[Tool Call]"
	if res.Content != "" {
		preview = api.Preview(res.Content, 100)
	}
	e.rec.success(res.FallbacksUsed, HistoryEntry{
		Timestamp:       time.Now().UTC(),
		ActualModel:     res.Model,
		Provider:        res.Provider,
		RequestPreview:  api.Preview(messages[len(messages)-1].Content, 100),
		ResponsePreview: preview,
	})
}

func (e *Engine) markFailure(ctx context.Context, backend, model string) {
	if e.failures == nil || e.Config().FailureCooldown <= 0 {
		return
	}
	if err := e.failures.MarkFailure(ctx, storage.FailureKey(backend, model), time.Now()); err != nil {
		slog.Warn("recording failure", slog.String("error", err.Error()))
	}
}

func (e *Engine) clearFailure(ctx context.Context, backend, model string) {
	if e.failures == nil || e.Config().FailureCooldown <= 0 {
		return
	}
	if err := e.failures.Clear(ctx, storage.FailureKey(backend, model)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.Warn("clearing failure", slog.String("error", err.Error()))
	}
}
