package auth

import (
	"context"
	"net/http"
	"testing"
)

// mockAuthn is a test authenticator with configurable behavior.
type mockAuthn struct {
	result AuthResult
}

func (m *mockAuthn) Authenticate(_ context.Context, _ *http.Request) AuthResult {
	return m.result
}

func TestAuthChain_FirstYesStops(t *testing.T) {
	chain := &AuthChain{
		Authenticators: []Authenticator{
			&mockAuthn{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: "ops"}}},
			&mockAuthn{result: AuthResult{Decision: No, Err: ErrUnauthenticated}},
		},
		DefaultDecision: No,
	}

	r, _ := http.NewRequest("POST", "/api/test/run", nil)
	result := chain.Authenticate(context.Background(), r)

	if result.Decision != Yes {
		t.Errorf("Decision = %d, want Yes", result.Decision)
	}
	if result.Identity.Subject != "ops" {
		t.Errorf("Subject = %q, want %q", result.Identity.Subject, "ops")
	}
}

func TestAuthChain_FirstNoStops(t *testing.T) {
	chain := &AuthChain{
		Authenticators: []Authenticator{
			&mockAuthn{result: AuthResult{Decision: No, Err: ErrUnauthenticated}},
			&mockAuthn{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: "oncall"}}},
		},
		DefaultDecision: No,
	}

	r, _ := http.NewRequest("POST", "/api/test/run", nil)
	result := chain.Authenticate(context.Background(), r)

	if result.Decision != No {
		t.Errorf("Decision = %d, want No", result.Decision)
	}
}

func TestAuthChain_AllAbstain_DefaultReject(t *testing.T) {
	chain := &AuthChain{
		Authenticators: []Authenticator{
			&mockAuthn{result: AuthResult{Decision: Abstain}},
			&mockAuthn{result: AuthResult{Decision: Abstain}},
		},
		DefaultDecision: No,
	}

	r, _ := http.NewRequest("POST", "/api/test/run", nil)
	result := chain.Authenticate(context.Background(), r)

	if result.Decision != No {
		t.Errorf("Decision = %d, want No (default reject)", result.Decision)
	}
}

func TestAuthChain_AllAbstain_DefaultAccept(t *testing.T) {
	chain := &AuthChain{
		Authenticators: []Authenticator{
			&mockAuthn{result: AuthResult{Decision: Abstain}},
		},
		DefaultDecision: Yes,
	}

	r, _ := http.NewRequest("POST", "/api/test/run", nil)
	result := chain.Authenticate(context.Background(), r)

	if result.Decision != Yes {
		t.Errorf("Decision = %d, want Yes (default accept)", result.Decision)
	}
	if result.Identity.Subject != "anonymous" {
		t.Errorf("Subject = %q, want %q", result.Identity.Subject, "anonymous")
	}
	if result.Identity.Method != "none" {
		t.Errorf("Method = %q, want %q", result.Identity.Method, "none")
	}
}

func TestAuthChain_Empty_DefaultReject(t *testing.T) {
	chain := &AuthChain{DefaultDecision: No}

	r, _ := http.NewRequest("POST", "/api/test/run", nil)
	result := chain.Authenticate(context.Background(), r)

	if result.Decision != No {
		t.Errorf("Decision = %d, want No (empty chain)", result.Decision)
	}
}

func TestAuthChain_AbstainThenYes(t *testing.T) {
	chain := &AuthChain{
		Authenticators: []Authenticator{
			&mockAuthn{result: AuthResult{Decision: Abstain}},
			&mockAuthn{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: "dashboard"}}},
		},
		DefaultDecision: No,
	}

	r, _ := http.NewRequest("POST", "/api/test/run", nil)
	result := chain.Authenticate(context.Background(), r)

	if result.Decision != Yes {
		t.Errorf("Decision = %d, want Yes", result.Decision)
	}
	if result.Identity.Subject != "dashboard" {
		t.Errorf("Subject = %q, want %q", result.Identity.Subject, "dashboard")
	}
}

func TestOperatorContext(t *testing.T) {
	ctx := context.Background()
	if OperatorFromContext(ctx) != nil {
		t.Error("expected no operator on a bare context")
	}
	if attr := OperatorAttr(ctx); attr.Value.String() != "[subject=anonymous method=none]" {
		t.Errorf("anonymous attr = %s", attr.Value)
	}

	ctx = WithOperator(ctx, &Identity{Subject: "ops", Method: "apikey"})
	if got := OperatorFromContext(ctx); got == nil || got.Subject != "ops" {
		t.Errorf("operator = %v, want ops", got)
	}
	attr := OperatorAttr(ctx)
	if attr.Key != "operator" || attr.Value.String() != "[subject=ops method=apikey]" {
		t.Errorf("attr = %s=%s", attr.Key, attr.Value)
	}
}
