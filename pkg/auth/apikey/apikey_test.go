package apikey

import (
	"context"
	"net/http"
	"testing"

	"github.com/nezumi0627/ClawBridge/pkg/auth"
)

func newOperators() *Authenticator {
	return New([]OperatorKey{
		{Key: "cb-ops-key", Subject: "ops"},
		{Key: "cb-oncall-key", Subject: "oncall"},
		{Key: "cb-unnamed-key"},
		{Key: "", Subject: "disabled"},
	})
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		value       string
		wantDecision auth.AuthDecision
		wantSubject string
	}{
		{"bearer", "Authorization", "Bearer cb-ops-key", auth.Yes, "ops"},
		{"second operator", "Authorization", "Bearer cb-oncall-key", auth.Yes, "oncall"},
		{"default subject", "Authorization", "Bearer cb-unnamed-key", auth.Yes, "operator"},
		{"x-api-key header", HeaderName, "cb-ops-key", auth.Yes, "ops"},
		{"unknown key", "Authorization", "Bearer cb-wrong", auth.No, ""},
		{"unknown x-api-key", HeaderName, "cb-wrong", auth.No, ""},
		{"empty bearer", "Authorization", "Bearer ", auth.No, ""},
		{"empty x-api-key", HeaderName, "", auth.No, ""},
		{"basic scheme abstains", "Authorization", "Basic dXNlcjpwYXNz", auth.Abstain, ""},
		{"no credentials", "", "", auth.Abstain, ""},
	}

	a := newOperators()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest(http.MethodPost, "/api/test/run", nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}

			result := a.Authenticate(context.Background(), r)
			if result.Decision != tt.wantDecision {
				t.Fatalf("Decision = %d, want %d", result.Decision, tt.wantDecision)
			}
			if tt.wantDecision != auth.Yes {
				return
			}
			if result.Identity.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", result.Identity.Subject, tt.wantSubject)
			}
			if result.Identity.Method != "apikey" {
				t.Errorf("Method = %q, want apikey", result.Identity.Method)
			}
		})
	}
}

func TestEmptyKeyNeverMatches(t *testing.T) {
	a := New([]OperatorKey{{Key: "", Subject: "disabled"}})
	r, _ := http.NewRequest(http.MethodGet, "/api/status", nil)
	r.Header.Set(HeaderName, "")

	if result := a.Authenticate(context.Background(), r); result.Decision == auth.Yes {
		t.Fatalf("empty key accepted as %+v", result.Identity)
	}
}

func TestIdentityNotShared(t *testing.T) {
	a := newOperators()
	r, _ := http.NewRequest(http.MethodGet, "/api/status", nil)
	r.Header.Set("Authorization", "Bearer cb-ops-key")

	first := a.Authenticate(context.Background(), r)
	first.Identity.Subject = "mallory"

	second := a.Authenticate(context.Background(), r)
	if second.Identity.Subject != "ops" {
		t.Errorf("Subject = %q after mutating an earlier identity", second.Identity.Subject)
	}
}
