// Package groq implements the Groq backend through its OpenAI-compatible
// API using the go-openai SDK. Groq supports function calling natively,
// so conversations are sent without the tool polyfill.
package groq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/provider"
)

// Name is the backend identifier.
const Name = "groq"

// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

var supportedFamilies = []string{"llama3-8b", "llama3-70b", "llama-3", "mixtral-8x7b", "gemma-7b"}

// Config holds configuration for the groq adapter.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Provider implements provider.Backend for Groq.
type Provider struct {
	apiKey string
	client *openai.Client
}

var _ provider.Backend = (*Provider)(nil)

// New creates a groq adapter. A missing API key is not an error; the
// backend reports itself unconfigured and is skipped by routing.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Provider{
		apiKey: cfg.APIKey,
		client: openai.NewClientWithConfig(oc),
	}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Info() provider.Info {
	return provider.Info{
		Tier:                provider.TierFast,
		DisplayName:         "Groq",
		Description:         "LPU Inference Engine",
		RequiresCredentials: true,
		Models:              []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"},
	}
}

func (p *Provider) Configured() bool { return p.apiKey != "" }

func (p *Provider) Supports(model string) bool {
	for _, f := range supportedFamilies {
		if strings.Contains(model, f) {
			return true
		}
	}
	return strings.Contains(model, "groq")
}

// MapModel resolves a requested model to a Groq model id.
func MapModel(model string) string {
	switch {
	case strings.Contains(model, "8b"):
		return "llama-3.1-8b-instant"
	case strings.Contains(model, "qwen"):
		return "qwen/qwen3-32b"
	default:
		return "llama-3.3-70b-versatile"
	}
}

// Complete calls the chat completions endpoint. Replies carrying native
// tool calls are returned as a choices envelope so the normalizer can
// recover them.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (string, error) {
	if p.apiKey == "" {
		return "", &provider.BackendError{Provider: Name, Message: "Missing Groq API Key", Err: provider.ErrMissingCredentials}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    MapModel(req.Model),
		Messages: translateMessages(req.Messages),
		Tools:    translateTools(req.Tools),
	})
	if err != nil {
		return "", mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &provider.BackendError{Provider: Name, Message: "Groq returned no choices", Err: provider.ErrEmptyResponse}
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		return msg.Content, nil
	}
	return envelope(msg)
}

func translateMessages(msgs []api.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, cm)
	}
	return out
}

var emptyParameters = json.RawMessage(`{"type":"object","properties":{}}`)

func translateTools(tools []api.ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = emptyParameters
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

type envelopeMessage struct {
	Content   string         `json:"content"`
	ToolCalls []api.ToolCall `json:"tool_calls"`
}

// envelope renders msg in the choices shape the normalizer understands.
func envelope(msg openai.ChatCompletionMessage) (string, error) {
	em := envelopeMessage{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		em.ToolCalls = append(em.ToolCalls, api.ToolCall{
			ID:       tc.ID,
			Type:     "function",
			Function: api.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
		})
	}
	body := map[string]any{
		"choices": []map[string]any{{"message": em}},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode tool calls: %w", err)
	}
	return string(b), nil
}

func mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &provider.BackendError{
			Provider: Name,
			Status:   apiErr.HTTPStatusCode,
			Message:  fmt.Sprintf("Groq API Error: %d %s", apiErr.HTTPStatusCode, apiErr.Message),
			Err:      err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &provider.BackendError{
			Provider: Name,
			Status:   reqErr.HTTPStatusCode,
			Message:  fmt.Sprintf("Groq API Error: %d %s", reqErr.HTTPStatusCode, reqErr.Error()),
			Err:      err,
		}
	}
	return &provider.BackendError{Provider: Name, Message: "Groq request failed: " + err.Error(), Err: err}
}
