// Package gemini implements the Google Gemini backend using the
// generateContent REST endpoint. Gemini is called without native tools;
// the engine applies the tool polyfill first.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/provider"
	"github.com/nezumi0627/ClawBridge/pkg/provider/openaicompat"
)

// Name is the backend identifier.
const Name = "gemini"

// DefaultBaseURL is the public Generative Language API.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// Config holds configuration for the gemini adapter.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Provider implements provider.Backend for Gemini.
type Provider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ provider.Backend = (*Provider)(nil)

// New creates a gemini adapter.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Provider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Tier:                provider.TierFast,
		DisplayName:         "Google Gemini",
		Description:         "Official Gemini API",
		RequiresCredentials: true,
		NeedsPolyfill:       true,
		Models:              []string{"gemini-2.1-flash"},
	}
}

func (p *Provider) Configured() bool { return p.apiKey != "" }

func (p *Provider) Supports(model string) bool {
	return strings.Contains(model, "gemini")
}

// MapModel resolves a requested model to a Gemini model id.
func MapModel(model string) string {
	switch {
	case strings.Contains(model, "pro"):
		return "gemini-2.5-pro"
	case strings.Contains(model, "2.0-flash"):
		return "gemini-2.0-flash"
	default:
		return "gemini-2.1-flash"
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Complete calls generateContent and returns the first candidate's text.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (string, error) {
	if p.apiKey == "" {
		return "", &provider.BackendError{Provider: Name, Message: "Missing Gemini API Key", Err: provider.ErrMissingCredentials}
	}

	body, err := json.Marshal(generateRequest{Contents: toContents(req.Messages)})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/models/%s:generateContent?key=%s", p.baseURL, MapModel(req.Model), url.QueryEscape(p.apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", openaicompat.MapNetworkError(Name, redact(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &provider.BackendError{
			Provider: Name,
			Status:   resp.StatusCode,
			Message:  fmt.Sprintf("Gemini API Error: %d %s", resp.StatusCode, strings.TrimSpace(string(text))),
		}
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("parse gemini response: %w", err)
	}
	if len(gr.Candidates) == 0 || gr.Candidates[0].Content == nil || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", &provider.BackendError{Provider: Name, Message: "Gemini returned empty response", Err: provider.ErrEmptyResponse}
	}
	return gr.Candidates[0].Content.Parts[0].Text, nil
}

// toContents maps the conversation onto Gemini's two roles. System turns
// are sent as user turns.
func toContents(msgs []api.Message) []content {
	out := make([]content, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == api.RoleAssistant {
			role = "model"
		}
		out = append(out, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	return out
}

// redact strips the query string, which carries the API key, from URL
// errors.
func redact(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		if u, perr := url.Parse(ue.URL); perr == nil {
			u.RawQuery = ""
			return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
		}
	}
	return err
}
