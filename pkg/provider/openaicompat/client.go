package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nezumi0627/ClawBridge/pkg/debug"
)

// maxResponseBytes bounds a completion body.
const maxResponseBytes = 8 << 20

// Client performs HTTP requests against an OpenAI-compatible Chat
// Completions backend and returns response bodies untouched.
type Client struct {
	name       string
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a new Client. name labels errors with the adapter
// that owns the client.
func NewClient(name, baseURL, apiKey string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")

	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		name: name,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Complete posts req to /v1/chat/completions and returns the raw response
// body. JSON bodies are compacted; anything else is returned as text.
func (c *Client) Complete(ctx context.Context, req ChatCompletionRequest) (string, error) {
	req.Stream = false

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	debug.Log("providers", "gateway request", "backend", c.name, "model", req.Model, "provider_hint", req.Provider, "messages", len(req.Messages))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", MapNetworkError(c.name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return "", MapHTTPError(c.name, httpResp)
	}

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return "", MapNetworkError(c.name, err)
	}

	if strings.Contains(httpResp.Header.Get("Content-Type"), "application/json") {
		var buf bytes.Buffer
		if json.Compact(&buf, data) == nil {
			return buf.String(), nil
		}
	}
	return string(data), nil
}

// ListModels returns model ids from the /v1/models endpoint.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	url := c.baseURL + "/v1/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(c.name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(c.name, httpResp)
	}

	var modelsResp ChatModelsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("parse models response: %w", err)
	}

	ids := make([]string, 0, len(modelsResp.Data))
	for _, m := range modelsResp.Data {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}
