package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/normalize"
	"github.com/nezumi0627/ClawBridge/pkg/observability"
	"github.com/nezumi0627/ClawBridge/pkg/polyfill"
	"github.com/nezumi0627/ClawBridge/pkg/provider"
)

// Probe sends messages straight to the named backend, with no fallback and
// no readiness wait, and returns the reply normalized without a footer.
func (e *Engine) Probe(ctx context.Context, backend, model string, messages []api.Message) (_ normalize.Parsed, _ time.Duration, err error) {
	ctx, span := observability.StartSpan(ctx, "engine.probe",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", backend),
			attribute.String("llm.model", model),
		),
	)
	defer func() { observability.EndSpan(span, err) }()

	b, ok := e.registry.Get(backend)
	if !ok {
		return normalize.Parsed{}, 0, fmt.Errorf("%w: unknown provider %q", ErrNoBackend, backend)
	}
	if !provider.IsReady(b) {
		return normalize.Parsed{}, 0, fmt.Errorf("%s server not ready", b.Info().DisplayName)
	}

	req := &provider.Request{Model: model, Messages: messages}
	if b.Info().NeedsPolyfill {
		req.Messages = polyfill.Apply(messages, nil)
	}
	if timeout := e.Config().AttemptTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := b.Complete(ctx, req)
	latency := time.Since(start)
	if err != nil {
		return normalize.Parsed{}, latency, err
	}
	return normalize.Parse(raw, nil), latency, nil
}
