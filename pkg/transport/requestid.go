package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/nezumi0627/ClawBridge/pkg/api"
)

// RequestID returns middleware that assigns a unique request ID to each
// request. If the incoming context already carries one (set by the HTTP
// adapter from the X-Request-ID header), that value is kept.
func RequestID() Middleware {
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest) (*api.Result, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, NewRequestID())
			}
			return next.Handle(ctx, req)
		})
	}
}

// NewRequestID returns a random UUID string.
func NewRequestID() string {
	return uuid.NewString()
}
