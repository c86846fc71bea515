// Package noop provides an authenticator that accepts all requests. It
// backs auth.type "none".
package noop

import (
	"context"
	"net/http"

	"github.com/nezumi0627/ClawBridge/pkg/auth"
)

// Authenticator always returns Yes with the anonymous identity.
type Authenticator struct{}

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	id := auth.Anonymous
	return auth.AuthResult{Decision: auth.Yes, Identity: &id}
}
