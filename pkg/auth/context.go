package auth

import (
	"context"
	"log/slog"
)

type operatorKey struct{}

// WithOperator records the operator accepted by Middleware.
func WithOperator(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, operatorKey{}, id)
}

// OperatorFromContext returns the operator behind a management request,
// or nil outside Middleware.
func OperatorFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(operatorKey{}).(*Identity)
	return id
}

// OperatorAttr is the log attribute naming who triggered a management
// action. Requests that never passed Middleware log as anonymous.
func OperatorAttr(ctx context.Context) slog.Attr {
	id := OperatorFromContext(ctx)
	if id == nil {
		id = &Anonymous
	}
	return slog.Group("operator",
		slog.String("subject", id.Subject),
		slog.String("method", id.Method),
	)
}
