package jwt

import (
	"context"
	"errors"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/nezumi0627/ClawBridge/pkg/auth"
)

var testSecret = []byte("operator-shared-secret")

func newTestAuthenticator(t *testing.T, cfgOverride func(*Config)) *Authenticator {
	t.Helper()
	cfg := Config{
		Secret:   testSecret,
		Issuer:   "https://auth.example.com",
		Audience: "clawbridge-admin",
	}
	if cfgOverride != nil {
		cfgOverride(&cfg)
	}
	authn, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return authn
}

func validClaims() jwtlib.MapClaims {
	return jwtlib.MapClaims{
		"sub": "operator-1",
		"iss": "https://auth.example.com",
		"aud": "clawbridge-admin",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
}

func sign(t *testing.T, method jwtlib.SigningMethod, key any, claims jwtlib.MapClaims) string {
	t.Helper()
	s, err := jwtlib.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return s
}

func authenticate(a *Authenticator, header string) auth.AuthResult {
	r := httptest.NewRequest("GET", "/api/stats", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return a.Authenticate(context.Background(), r)
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoSecret) {
		t.Errorf("New without secret = %v, want ErrNoSecret", err)
	}
}

func TestJWT_ValidToken(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	claims := validClaims()
	claims["scope"] = "tests:run gateway:restart"

	result := authenticate(a, "Bearer "+sign(t, jwtlib.SigningMethodHS256, testSecret, claims))

	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes; err=%v", result.Decision, result.Err)
	}
	if result.Identity.Subject != "operator-1" || result.Identity.Method != "jwt" {
		t.Errorf("Identity = %+v", result.Identity)
	}
	if !slices.Equal(result.Identity.Scopes, []string{"tests:run", "gateway:restart"}) {
		t.Errorf("Scopes = %v", result.Identity.Scopes)
	}
}

func TestJWT_Rejected(t *testing.T) {
	a := newTestAuthenticator(t, nil)

	tests := []struct {
		name   string
		mutate func(jwtlib.MapClaims)
		secret []byte
	}{
		{"expired", func(c jwtlib.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }, testSecret},
		{"no expiry", func(c jwtlib.MapClaims) { delete(c, "exp") }, testSecret},
		{"wrong audience", func(c jwtlib.MapClaims) { c["aud"] = "other" }, testSecret},
		{"wrong issuer", func(c jwtlib.MapClaims) { c["iss"] = "https://evil.example.com" }, testSecret},
		{"missing subject", func(c jwtlib.MapClaims) { delete(c, "sub") }, testSecret},
		{"wrong secret", func(jwtlib.MapClaims) {}, []byte("guessed")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims()
			tt.mutate(claims)
			result := authenticate(a, "Bearer "+sign(t, jwtlib.SigningMethodHS256, tt.secret, claims))
			if result.Decision != auth.No {
				t.Errorf("Decision = %d, want No", result.Decision)
			}
			if result.Err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestJWT_RejectsOtherAlgorithms(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	token := sign(t, jwtlib.SigningMethodHS512, testSecret, validClaims())
	if result := authenticate(a, "Bearer "+token); result.Decision != auth.No {
		t.Errorf("HS512 token: Decision = %d, want No", result.Decision)
	}
}

func TestJWT_Abstains(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	for _, header := range []string{"", "Basic dXNlcjpwYXNz", "Bearer sk-plain-api-key"} {
		if result := authenticate(a, header); result.Decision != auth.Abstain {
			t.Errorf("header %q: Decision = %d, want Abstain", header, result.Decision)
		}
	}
}

func TestJWT_CustomClaims(t *testing.T) {
	a := newTestAuthenticator(t, func(c *Config) {
		c.Issuer = ""
		c.Audience = ""
		c.UserClaim = "email"
		c.ScopesClaim = "roles"
	})
	claims := jwtlib.MapClaims{
		"email": "ops@example.com",
		"roles": []any{"admin", 7, "viewer"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	result := authenticate(a, "Bearer "+sign(t, jwtlib.SigningMethodHS256, testSecret, claims))
	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d; err=%v", result.Decision, result.Err)
	}
	if result.Identity.Subject != "ops@example.com" {
		t.Errorf("Subject = %q", result.Identity.Subject)
	}
	if !slices.Equal(result.Identity.Scopes, []string{"admin", "viewer"}) {
		t.Errorf("Scopes = %v", result.Identity.Scopes)
	}
}

func TestChainAcceptsToken(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	chain := &auth.AuthChain{
		Authenticators:  []auth.Authenticator{a},
		DefaultDecision: auth.No,
	}
	r := httptest.NewRequest("GET", "/api/stats", nil)
	r.Header.Set("Authorization", "Bearer "+sign(t, jwtlib.SigningMethodHS256, testSecret, validClaims()))
	if got := chain.Authenticate(context.Background(), r); got.Decision != auth.Yes {
		t.Errorf("chain Decision = %d, want Yes", got.Decision)
	}
}
