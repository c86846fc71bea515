// Package pollinations implements the open Pollinations text backend.
// It needs no credentials and is the default backend when nothing else
// matches a model.
package pollinations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/nezumi0627/ClawBridge/pkg/provider"
	"github.com/nezumi0627/ClawBridge/pkg/provider/openaicompat"
)

// Name is the backend identifier.
const Name = "pollinations"

// DefaultBaseURL is the public text endpoint.
const DefaultBaseURL = "https://text.pollinations.ai"

// Config holds configuration for the pollinations adapter.
type Config struct {
	BaseURL string
	Timeout time.Duration // default: 60s
}

// Provider implements provider.Backend for Pollinations.
type Provider struct {
	baseURL string
	client  *http.Client
}

var _ provider.Backend = (*Provider)(nil)

// New creates a pollinations adapter.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Provider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Tier:          provider.TierOpen,
		DisplayName:   "Pollinations",
		Description:   "Pollinations AI - Fast and reliable",
		NeedsPolyfill: true,
		Models:        []string{"gpt-4o-mini", "openai", "llama"},
	}
}

func (p *Provider) Configured() bool { return true }

func (p *Provider) Supports(model string) bool {
	return strings.Contains(model, "gpt-4o-mini") || model == "openai" || strings.HasPrefix(model, "llama")
}

// MapModel picks one of the two Pollinations model families.
func MapModel(model string) string {
	if strings.Contains(model, "llama") {
		return "llama"
	}
	return "openai"
}

type requestBody struct {
	Messages []openaicompat.ChatMessage `json:"messages"`
	Model    string                     `json:"model"`
	Seed     int                        `json:"seed"`
	JSONMode bool                       `json:"jsonMode"`
}

// Complete posts the conversation and returns the plain-text reply.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (string, error) {
	body, err := json.Marshal(requestBody{
		Messages: openaicompat.TranslateMessages(req.Messages),
		Model:    MapModel(req.Model),
		Seed:     rand.IntN(1_000_000),
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/plain")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", mapNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("Pollinations Error %d", resp.StatusCode)
		if text, _ := io.ReadAll(io.LimitReader(resp.Body, 200)); len(text) > 0 {
			msg += ": " + string(text)
		}
		return "", &provider.BackendError{Provider: Name, Status: resp.StatusCode, Message: msg}
	}

	text, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", mapNetworkError(err)
	}
	return string(text), nil
}

func mapNetworkError(err error) error {
	var ne net.Error
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return &provider.BackendError{Provider: Name, Message: "Pollinations request timed out. The service may be slow or unavailable.", Err: err}
	case errors.Is(err, syscall.ECONNREFUSED), errors.As(err, &dnsErr):
		return &provider.BackendError{Provider: Name, Message: "Pollinations service is unreachable. Check your internet connection.", Err: err}
	default:
		return openaicompat.MapNetworkError(Name, err)
	}
}
