package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/observability"
)

// Middleware creates HTTP middleware that runs chain on every request and
// stores the accepted identity in the request context.
func Middleware(chain *AuthChain) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := chain.Authenticate(r.Context(), r)

			if result.Decision != Yes || result.Identity == nil {
				attrs := []any{
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				}
				reason := "missing"
				if result.Err != nil {
					reason = "invalid"
					attrs = append(attrs, slog.String("error", result.Err.Error()))
				}
				slog.Warn("authentication failed", attrs...)
				observability.AuthRejectedTotal.WithLabelValues(reason).Inc()
				writeError(w, http.StatusUnauthorized, api.NewUnauthenticatedError("authentication required"))
				return
			}

			if result.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				writeError(w, http.StatusInternalServerError, api.NewServerError("internal authentication error"))
				return
			}

			slog.Debug("authentication succeeded",
				slog.String("subject", result.Identity.Subject),
				slog.String("method", result.Identity.Method),
				slog.String("path", r.URL.Path),
			)

			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), result.Identity)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, apiErr *api.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}
