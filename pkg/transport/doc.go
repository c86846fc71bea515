// Package transport defines the chat handler contract and the middleware
// chain shared by the HTTP adapter.
//
// # Handler Interface
//
// ChatHandler answers one chat completion request with a normalized
// api.Result. The routing engine implements it; the HTTP adapter in
// pkg/transport/http decides how the result is rendered (a JSON
// completion or an emulated SSE chunk stream).
//
// # Middleware
//
// The middleware chain wraps a ChatHandler with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID) and structured logging via log/slog.
//
// # Errors
//
// Errors surfaced to clients are *api.APIError values. HTTPStatusFromError
// maps their type onto a status code and WriteAPIError serializes them in
// the {"error": {...}} envelope.
package transport
