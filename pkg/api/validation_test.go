package api

import (
	"encoding/json"
	"strings"
	"testing"
)

func userMessages(n int) []Message {
	msgs := make([]Message, n)
	for i := range n {
		msgs[i] = Message{Role: RoleUser, Content: "x"}
	}
	return msgs
}

func TestValidateRequest(t *testing.T) {
	cfg := ValidationConfig{MaxMessages: 4, MaxTools: 1}

	tests := []struct {
		name      string
		req       *ChatRequest
		wantParam string // empty means valid
	}{
		{
			name:      "empty request",
			req:       &ChatRequest{},
			wantParam: "messages",
		},
		{
			name:      "null prompt",
			req:       &ChatRequest{Prompt: json.RawMessage(`null`)},
			wantParam: "messages",
		},
		{
			name: "prompt only",
			req:  &ChatRequest{Prompt: json.RawMessage(`"hello"`)},
		},
		{
			name: "messages at limit",
			req:  &ChatRequest{Messages: userMessages(4)},
		},
		{
			name:      "too many messages",
			req:       &ChatRequest{Messages: userMessages(5)},
			wantParam: "messages",
		},
		{
			name: "too many tools",
			req: &ChatRequest{
				Messages: userMessages(1),
				Tools:    []ToolDefinition{{Name: "a"}, {Name: "b"}},
			},
			wantParam: "tools",
		},
		{
			name:      "unknown role",
			req:       &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "x"}, {Role: "robot", Content: "x"}}},
			wantParam: "messages[1].role",
		},
		{
			name: "tool without name",
			req: &ChatRequest{
				Messages: userMessages(1),
				Tools:    []ToolDefinition{{Description: "nameless"}},
			},
			wantParam: "tools[0].function.name",
		},
		{
			name: "tool conversation",
			req: &ChatRequest{
				Messages: []Message{
					{Role: RoleSystem, Content: "be brief"},
					{Role: RoleUser, Content: "weather?"},
					{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Type: "function", Function: FunctionCall{Name: "get_weather", Arguments: "{}"}}}},
					{Role: RoleTool, ToolCallID: "call_1", Content: "sunny"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req, cfg)
			if tt.wantParam == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error on %q", tt.wantParam)
			}
			if err.Type != ErrorTypeInvalidRequest {
				t.Errorf("Type = %q, want %q", err.Type, ErrorTypeInvalidRequest)
			}
			if err.Param != tt.wantParam {
				t.Errorf("Param = %q, want %q", err.Param, tt.wantParam)
			}
		})
	}
}

func TestValidateRequestZeroLimits(t *testing.T) {
	req := &ChatRequest{Messages: userMessages(2000)}
	if err := ValidateRequest(req, ValidationConfig{}); err != nil {
		t.Errorf("zero limits must disable the checks, got %v", err)
	}
	if err := ValidateRequest(req, DefaultValidationConfig()); err == nil || !strings.Contains(err.Message, "1000") {
		t.Errorf("default limit error = %v", err)
	}
}
