package gateway

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nezumi0627/ClawBridge/pkg/provider"
	"github.com/nezumi0627/ClawBridge/pkg/provider/openaicompat"
)

// Name is the backend identifier.
const Name = "g4f"

// Provider implements provider.Backend for the local gateway.
type Provider struct {
	client *openaicompat.Client
	status Status
}

var (
	_ provider.Backend = (*Provider)(nil)
	_ provider.Readier = (*Provider)(nil)
)

// New creates a gateway adapter. status may be nil when no supervisor is
// running, in which case the gateway is assumed reachable.
func New(cfg Config, status Status) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway: BaseURL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Provider{
		client: openaicompat.NewClient(Name, cfg.BaseURL, "", cfg.Timeout),
		status: status,
	}, nil
}

// Name returns the backend identifier.
func (p *Provider) Name() string { return Name }

// Info returns the static description of the backend.
func (p *Provider) Info() provider.Info {
	return provider.Info{
		Tier:          provider.TierGateway,
		DisplayName:   "G4F",
		Description:   "GPT4Free - Free AI models",
		NeedsPolyfill: true,
		NeedsGateway:  true,
		Models:        []string{"gpt-4o", "gpt-4o-mini", "gpt-4", "deepseek-chat", "command-r"},
	}
}

// Configured always reports true; the gateway needs no credentials.
func (p *Provider) Configured() bool { return true }

// Ready reports whether the supervised gateway passed its health check.
func (p *Provider) Ready() bool {
	if p.status == nil {
		return true
	}
	return p.status.Ready()
}

// WorkingModels returns the gateway's current working-model set.
func (p *Provider) WorkingModels() []string {
	if p.status == nil {
		return nil
	}
	return p.status.WorkingModels()
}

// Supports reports whether the gateway serves model.
func (p *Provider) Supports(model string) bool {
	return strings.HasPrefix(model, "g4f") ||
		(strings.Contains(model, "gpt-4") && !strings.Contains(model, "mini")) ||
		strings.Contains(model, "gemini") ||
		slices.Contains(p.WorkingModels(), model)
}

// Complete sends the conversation to the gateway and returns the raw body.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (string, error) {
	hint := req.ProviderHint
	if hint == "" {
		hint = ProviderHint(req.Model)
	}
	body := openaicompat.TranslateToChat(req, MapModel(req.Model))
	body.Provider = hint

	raw, err := p.client.Complete(ctx, body)
	if err != nil {
		return "", mapError(err)
	}
	return raw, nil
}

// MapModel translates a requested model to the gateway's name for it.
func MapModel(model string) string {
	if model == "gpt-4-turbo" {
		return "gpt-4"
	}
	return model
}

// ProviderHint picks the gateway sub-provider best suited to model, or ""
// to let the gateway decide.
func ProviderHint(model string) string {
	switch {
	case strings.Contains(model, "llama-3"), strings.Contains(model, "mixtral"), strings.Contains(model, "gemma"):
		return "Groq"
	case strings.Contains(model, "deepseek"):
		return "DeepSeek"
	case strings.Contains(model, "claude"):
		return "Anthropic"
	case strings.Contains(model, "gpt-4o"):
		return "PuterJS"
	case strings.Contains(model, "gemini"):
		return "GeminiPro"
	default:
		return ""
	}
}
