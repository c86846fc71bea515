package provider

import (
	"context"

	"github.com/nezumi0627/ClawBridge/pkg/api"
)

// Tier groups backends by routing priority.
type Tier int

const (
	// TierFast backends are authenticated, low-latency APIs tried first.
	TierFast Tier = iota
	// TierGateway is the supervised local gateway.
	TierGateway
	// TierAuthenticated backends need credentials but are slower.
	TierAuthenticated
	// TierOpen backends need no credentials and serve as the default.
	TierOpen
)

func (t Tier) String() string {
	switch t {
	case TierFast:
		return "fast"
	case TierGateway:
		return "gateway"
	case TierAuthenticated:
		return "authenticated"
	case TierOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Info is the static description of a backend.
type Info struct {
	Tier Tier

	// DisplayName and Description are shown on the management API.
	DisplayName string
	Description string

	// RequiresCredentials is true when the backend cannot be called
	// without an API key.
	RequiresCredentials bool

	// NeedsPolyfill is true when the backend lacks native function
	// calling and conversations must be rewritten by pkg/polyfill.
	NeedsPolyfill bool

	// NeedsGateway is true when requests are served through the
	// supervised local gateway process.
	NeedsGateway bool

	// Models is the catalog advertised for this backend.
	Models []string
}

// Request is a backend-facing completion request.
type Request struct {
	Model    string
	Messages []api.Message
	Tools    []api.ToolDefinition

	// ProviderHint selects a sub-provider inside the local gateway.
	ProviderHint string
}

// Backend is a completion backend.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Backend interface {
	// Name returns the backend identifier (e.g., "groq", "g4f").
	Name() string

	// Info returns the static description of the backend.
	Info() Info

	// Supports reports whether the backend serves model.
	Supports(model string) bool

	// Configured reports whether the credentials the backend needs are present.
	Configured() bool

	// Complete performs one non-streaming completion and returns the raw
	// reply text.
	Complete(ctx context.Context, req *Request) (string, error)
}

// Readier is implemented by backends whose availability depends on a
// supervised process.
type Readier interface {
	Ready() bool
}

// IsReady reports whether b can take requests right now. Backends without
// a readiness signal are always ready.
func IsReady(b Backend) bool {
	if r, ok := b.(Readier); ok {
		return r.Ready()
	}
	return true
}
