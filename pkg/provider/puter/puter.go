// Package puter implements the Puter backend. Puter models are reached
// through the local gateway's PuterJS sub-provider; the API key is handed
// to the gateway process through its environment.
package puter

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nezumi0627/ClawBridge/pkg/provider"
	"github.com/nezumi0627/ClawBridge/pkg/provider/openaicompat"
)

// Name is the backend identifier.
const Name = "puter"

const subProvider = "PuterJS"

var knownModels = []string{"gpt-4o-mini", "gpt-4o", "claude-3-5-sonnet", "claude-3-7-sonnet-latest", "deepseek-chat"}

// Config holds configuration for the puter adapter.
type Config struct {
	// GatewayURL is the local gateway URL.
	GatewayURL string

	// APIKey is the Puter key. Without it the backend reports itself
	// unconfigured.
	APIKey string

	Timeout time.Duration
}

// Provider implements provider.Backend for Puter.
type Provider struct {
	apiKey string
	client *openaicompat.Client
	ready  func() bool
}

var _ provider.Backend = (*Provider)(nil)

// New creates a puter adapter. ready reports gateway readiness and may be nil.
func New(cfg Config, ready func() bool) (*Provider, error) {
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("puter: GatewayURL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Provider{
		apiKey: cfg.APIKey,
		client: openaicompat.NewClient(Name, cfg.GatewayURL, "", cfg.Timeout),
		ready:  ready,
	}, nil
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Tier:                provider.TierAuthenticated,
		DisplayName:         "Puter",
		Description:         "Puter Cloud AI",
		RequiresCredentials: true,
		NeedsPolyfill:       true,
		NeedsGateway:        true,
		Models:              []string{"gpt-4o-mini", "claude-3-7-sonnet-latest", "deepseek-chat"},
	}
}

func (p *Provider) Configured() bool { return p.apiKey != "" }

// Ready reports whether the gateway Puter depends on is up.
func (p *Provider) Ready() bool {
	if p.ready == nil {
		return true
	}
	return p.ready()
}

func (p *Provider) Supports(model string) bool {
	return slices.Contains(knownModels, model) || strings.Contains(model, "puter")
}

func (p *Provider) Complete(ctx context.Context, req *provider.Request) (string, error) {
	if p.apiKey == "" {
		return "", &provider.BackendError{Provider: Name, Message: "Missing Puter API Key", Err: provider.ErrMissingCredentials}
	}
	body := openaicompat.TranslateToChat(req, MapModel(req.Model))
	body.Provider = subProvider

	raw, err := p.client.Complete(ctx, body)
	if err != nil {
		var be *provider.BackendError
		if errors.As(err, &be) && be.Status != 0 {
			return "", &provider.BackendError{
				Provider: Name,
				Status:   be.Status,
				Message:  fmt.Sprintf("Puter (via G4F) Error: %d %s", be.Status, be.Message),
				Err:      err,
			}
		}
		return "", err
	}
	return raw, nil
}

// MapModel normalizes model names to the ids Puter serves.
func MapModel(model string) string {
	switch {
	case strings.Contains(model, "4o-mini"):
		return "gpt-4o-mini"
	case strings.Contains(model, "4o"):
		return "gpt-4o"
	case model == "claude-3-7-sonnet-latest", strings.Contains(model, "claude-3.7"):
		return "claude-3-7-sonnet-latest"
	case strings.Contains(model, "claude-3-5-sonnet"), strings.Contains(model, "3.5-sonnet"):
		// 3.5 is served by the 3.7 model.
		return "claude-3-7-sonnet-latest"
	case strings.Contains(model, "deepseek"):
		return "deepseek-chat"
	default:
		return model
	}
}
