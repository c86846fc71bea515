package transport

import (
	"context"

	"github.com/nezumi0627/ClawBridge/pkg/api"
)

// ChatHandler answers a chat completion request. Implementations return
// either a normalized result or an error; a returned *api.APIError is shown
// to the client verbatim.
type ChatHandler interface {
	Handle(ctx context.Context, req *api.ChatRequest) (*api.Result, error)
}

// ChatHandlerFunc is an adapter that allows using an ordinary function
// as a ChatHandler.
type ChatHandlerFunc func(ctx context.Context, req *api.ChatRequest) (*api.Result, error)

// Handle calls f(ctx, req).
func (f ChatHandlerFunc) Handle(ctx context.Context, req *api.ChatRequest) (*api.Result, error) {
	return f(ctx, req)
}
