package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/engine"
	"github.com/nezumi0627/ClawBridge/pkg/observability"
	"github.com/nezumi0627/ClawBridge/pkg/provider"
	"github.com/nezumi0627/ClawBridge/pkg/transport"
)

// ModelLister reports the advertised model ids.
type ModelLister interface {
	Models() []string
}

// Adapter serves the OpenAI-compatible chat API over HTTP.
type Adapter struct {
	handler transport.ChatHandler
	models  ModelLister
	mux     *http.ServeMux
	config  Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
	Validation  api.ValidationConfig

	// Ready backs GET /readyz. Nil means always ready.
	Ready func() bool
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 50 << 20, // 50 MB
		Validation:  api.DefaultValidationConfig(),
	}
}

// NewAdapter creates an HTTP adapter around handler. Middleware is applied
// to the handler in the given order. models may be nil, in which case
// /v1/models lists nothing.
func NewAdapter(handler transport.ChatHandler, models ModelLister, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		handler = transport.Chain(middlewares...)(handler)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		handler: handler,
		models:  models,
		mux:     http.NewServeMux(),
		config:  cfg,
	}

	a.mux.HandleFunc("POST /v1/chat/completions", a.handleChatCompletion)
	a.mux.HandleFunc("POST /v1/completions", a.handleChatCompletion)
	a.mux.HandleFunc("GET /v1/models", a.handleListModels)
	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.HandleFunc("GET /readyz", a.handleReadyz)

	return a
}

// Handle registers an extra route on the adapter's mux.
func (a *Adapter) Handle(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

// Handler returns the http.Handler for this adapter, wrapped with CORS
// handling, X-Request-ID propagation and request metrics.
func (a *Adapter) Handler() http.Handler {
	return corsMiddleware(httpRequestIDMiddleware(observability.MetricsMiddleware(a.mux)))
}

// corsMiddleware allows browser clients from any origin and answers
// preflight requests directly.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET,HEAD,PUT,PATCH,POST,DELETE")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			h.Add("Vary", "Access-Control-Request-Headers")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// httpRequestIDMiddleware propagates the X-Request-ID header. A client
// supplied id is kept; otherwise a new one is generated. The id is placed
// in the request context and echoed on the response.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.NewRequestID()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter wraps http.ResponseWriter to inject the
// X-Request-ID header before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	w.ensureRequestIDHeader()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleChatCompletion handles POST /v1/chat/completions and its legacy
// /v1/completions alias.
func (a *Adapter) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	req, ok := decodeBody[api.ChatRequest](w, r, a.config.MaxBodySize)
	if !ok {
		return
	}

	if apiErr := api.ValidateRequest(&req, a.config.Validation); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	res, err := a.handler.Handle(r.Context(), &req)
	if err != nil {
		transport.WriteAPIError(w, toAPIError(err))
		return
	}

	if req.Stream {
		if err := writeChunks(w, res); err != nil {
			slog.Debug("stream write failed",
				slog.String("request_id", transport.RequestIDFromContext(r.Context())),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	transport.WriteJSON(w, http.StatusOK, res.ToCompletion())
}

// handleListModels handles GET /v1/models.
func (a *Adapter) handleListModels(w http.ResponseWriter, _ *http.Request) {
	var ids []string
	if a.models != nil {
		ids = a.models.Models()
	}
	transport.WriteJSON(w, http.StatusOK, api.NewModelList(ids))
}

func (a *Adapter) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *Adapter) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if a.config.Ready != nil && !a.config.Ready() {
		transport.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// decodeBody reads a JSON body of at most limit bytes into a T. On failure
// it writes a 413 or 400 response and reports false.
func decodeBody[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	return decode[T](w, r, limit, false)
}

// decodeOptionalBody is decodeBody, except that an empty body yields the
// zero T.
func decodeOptionalBody[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	return decode[T](w, r, limit, true)
}

func decode[T any](w http.ResponseWriter, r *http.Request, limit int64, optional bool) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	err := json.NewDecoder(r.Body).Decode(&v)
	switch {
	case err == nil:
		return v, true
	case optional && errors.Is(err, io.EOF):
		return v, true
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", limit)),
			http.StatusRequestEntityTooLarge,
		)
		return v, false
	}
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
		http.StatusBadRequest,
	)
	return v, false
}

// toAPIError maps a handler error onto the error surfaced to clients.
func toAPIError(err error) *api.APIError {
	var apiErr *api.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case provider.IsDependencyMissing(err):
		return api.NewBackendError("dependency_missing", err.Error())
	case errors.Is(err, engine.ErrChainExhausted):
		return api.NewBackendError("exhausted", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return api.NewBackendError("aborted", "request aborted: "+err.Error())
	default:
		return api.NewServerError(err.Error())
	}
}
