package transport

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/nezumi0627/ClawBridge/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to server error responses. The server continues to
// accept new requests after a panic is recovered.
func Recovery() Middleware {
	return func(next ChatHandler) ChatHandler {
		return ChatHandlerFunc(func(ctx context.Context, req *api.ChatRequest) (res *api.Result, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("handler panic",
						slog.String("request_id", RequestIDFromContext(ctx)),
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())),
					)
					res = nil
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.Handle(ctx, req)
		})
	}
}
