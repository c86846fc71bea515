// Package apikey authenticates management API operators by static key.
// Keys come from the auth.api_keys config section and are kept only as
// SHA-256 digests.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/nezumi0627/ClawBridge/pkg/auth"
	"github.com/nezumi0627/ClawBridge/pkg/debug"
)

// HeaderName is the alternative header operator tooling may use instead
// of a bearer token.
const HeaderName = "X-API-Key"

// OperatorKey is one configured operator credential.
type OperatorKey struct {
	Key     string
	Subject string
}

type operator struct {
	digest  [32]byte
	subject string
}

// Authenticator matches presented keys against the configured operators.
type Authenticator struct {
	operators []operator
}

// New hashes keys and returns an authenticator. Entries with an empty key
// are skipped so a missing secret never matches an empty token.
func New(keys []OperatorKey) *Authenticator {
	a := &Authenticator{}
	for _, k := range keys {
		if k.Key == "" {
			continue
		}
		subject := k.Subject
		if subject == "" {
			subject = "operator"
		}
		a.operators = append(a.operators, operator{
			digest:  sha256.Sum256([]byte(k.Key)),
			subject: subject,
		})
	}
	return a
}

// Authenticate abstains when the request carries no key, votes No for an
// unknown key and Yes for a configured one.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	token, present := presentedKey(r)
	if !present {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	digest := sha256.Sum256([]byte(token))
	for _, op := range a.operators {
		if subtle.ConstantTimeCompare(digest[:], op.digest[:]) == 1 {
			debug.Log("auth", "operator key accepted", "subject", op.subject, "path", r.URL.Path)
			return auth.AuthResult{
				Decision: auth.Yes,
				Identity: &auth.Identity{Subject: op.subject, Method: "apikey"},
			}
		}
	}
	return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
}

// presentedKey reads a bearer token, falling back to X-API-Key. Other
// Authorization schemes are left for the next authenticator.
func presentedKey(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return "", false
		}
		return strings.TrimSpace(token), true
	}
	if values, ok := r.Header[http.CanonicalHeaderKey(HeaderName)]; ok && len(values) > 0 {
		return strings.TrimSpace(values[0]), true
	}
	return "", false
}
