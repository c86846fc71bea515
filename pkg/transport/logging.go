package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/nezumi0627/ClawBridge/pkg/api"
)

// Logging returns middleware that emits one structured log entry per
// request with the requested model, the model and backend that answered,
// the fallback count and the duration.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest) (*api.Result, error) {
			start := time.Now()
			res, err := next.Handle(ctx, req)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("model", req.Model),
				slog.Bool("stream", req.Stream),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "request failed", attrs...)
				return nil, err
			}
			attrs = append(attrs,
				slog.String("actual_model", res.Model),
				slog.String("provider", res.Provider),
				slog.Int("fallbacks", res.FallbacksUsed),
			)
			logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
			return res, nil
		})
	}
}
