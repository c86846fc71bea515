package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Finish reasons reported on a completion choice.
const (
	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"
)

// Message is one conversation turn. Content is always a plain string once
// decoded; backends never see a missing content field.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// UnmarshalJSON accepts string, array-of-parts, or null content and
// normalizes it with ExtractContent. A missing role means a user turn.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role       Role            `json:"role"`
		Content    json.RawMessage `json:"content"`
		ToolCallID string          `json:"tool_call_id"`
		ToolCalls  []ToolCall      `json:"tool_calls"`
		Name       string          `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = raw.Role
	if m.Role == "" {
		m.Role = RoleUser
	}
	m.Content = ExtractContent(raw.Content)
	m.ToolCallID = raw.ToolCallID
	m.ToolCalls = raw.ToolCalls
	m.Name = raw.Name
	return nil
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	// Index is only set on streaming deltas.
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the name and JSON-encoded arguments of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// UnmarshalJSON accepts arguments either as a JSON string or as a raw
// JSON value, storing the latter in its compact encoded form.
func (f *FunctionCall) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Name = raw.Name
	f.Arguments = EncodeArguments(raw.Arguments)
	return nil
}

// NewToolCall builds a function tool call with a fresh ID.
func NewToolCall(name, arguments string) ToolCall {
	return ToolCall{
		ID:       NewToolCallID(),
		Type:     "function",
		Function: FunctionCall{Name: name, Arguments: arguments},
	}
}

// EncodeArguments converts a raw arguments value into the JSON string
// form. A JSON string is unwrapped; any other value is compacted; an
// absent value becomes "{}".
func EncodeArguments(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return "{}"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// ToolDefinition describes a function the caller makes available.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// toolEnvelope is the OpenAI wire shape {"type":"function","function":{...}}.
type toolEnvelope struct {
	Type     string          `json:"type"`
	Function *ToolDefinition `json:"function,omitempty"`
}

// UnmarshalJSON accepts both the OpenAI envelope and a bare definition.
func (t *ToolDefinition) UnmarshalJSON(data []byte) error {
	var env toolEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Function != nil {
		*t = *env.Function
		return nil
	}
	type bare ToolDefinition
	var b bare
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	*t = ToolDefinition(b)
	return nil
}

// MarshalJSON emits the OpenAI envelope.
func (t ToolDefinition) MarshalJSON() ([]byte, error) {
	type bare ToolDefinition
	b := bare(t)
	return json.Marshal(struct {
		Type     string `json:"type"`
		Function bare   `json:"function"`
	}{Type: "function", Function: b})
}

// RoutingOptions carries per-request routing overrides. Clients send it
// under the "openclaw" key.
type RoutingOptions struct {
	ForceProvider ProviderPins      `json:"force_provider,omitempty"`
	Aliases       map[string]string `json:"aliases,omitempty"`
}

// ProviderPins maps model names to a forced backend. A bare string on the
// wire pins every model.
type ProviderPins map[string]string

// UnmarshalJSON accepts either a model map or a single backend name.
func (p *ProviderPins) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		if name != "" {
			*p = ProviderPins{"*": name}
		}
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*p = m
	return nil
}

// For returns the backend pinned for model, or "".
func (p ProviderPins) For(model string) string {
	if v, ok := p[model]; ok {
		return v
	}
	return p["*"]
}

// ChatRequest is an inbound chat completion request.
type ChatRequest struct {
	Model    string           `json:"model,omitempty"`
	Messages []Message        `json:"messages,omitempty"`
	Prompt   json.RawMessage  `json:"prompt,omitempty"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
	Stream   bool             `json:"stream,omitempty"`

	// Provider is a sub-provider hint forwarded to the local gateway.
	Provider string          `json:"provider,omitempty"`
	Routing  *RoutingOptions `json:"openclaw,omitempty"`
}

// Conversation returns the request messages, falling back to a single
// user message built from prompt when messages are absent.
func (r *ChatRequest) Conversation() []Message {
	if len(r.Messages) > 0 {
		return r.Messages
	}
	if len(r.Prompt) == 0 || string(r.Prompt) == "null" {
		return nil
	}
	text := ExtractContent(r.Prompt)
	if text == "" {
		return nil
	}
	return []Message{{Role: RoleUser, Content: text}}
}

// Result is the normalized outcome of one handled request.
type Result struct {
	ID       string
	Created  int64
	Model    string
	Provider string
	Content  string
	// ToolCalls is non-empty only when Content is empty.
	ToolCalls []ToolCall

	// FallbacksUsed counts the chain candidates that failed before this
	// result was produced.
	FallbacksUsed int
}

// FinishReason reports "tool_calls" when the result carries tool calls
// and "stop" otherwise.
func (r *Result) FinishReason() string {
	if len(r.ToolCalls) > 0 {
		return FinishReasonToolCalls
	}
	return FinishReasonStop
}

// ChatCompletion is the non-streaming wire response.
type ChatCompletion struct {
	ID       string   `json:"id"`
	Object   string   `json:"object"`
	Created  int64    `json:"created"`
	Model    string   `json:"model"`
	Provider string   `json:"provider"`
	Choices  []Choice `json:"choices"`
	Usage    Usage    `json:"usage"`
}

// Choice is a single completion choice.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// ResponseMessage is the assistant message of a choice. Content is null
// when the model requested tools.
type ResponseMessage struct {
	Role      Role       `json:"role"`
	Content   *string    `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Usage is always zero; backends here do not report token counts.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChunk is one streaming delta.
type ChatCompletionChunk struct {
	ID       string        `json:"id"`
	Object   string        `json:"object"`
	Created  int64         `json:"created"`
	Model    string        `json:"model"`
	Provider string        `json:"provider"`
	Choices  []ChunkChoice `json:"choices"`
}

// ChunkChoice is the single choice of a streaming chunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental part of a chunk.
type Delta struct {
	Role      Role       `json:"role,omitempty"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToCompletion renders the result as a non-streaming response.
func (r *Result) ToCompletion() *ChatCompletion {
	msg := ResponseMessage{Role: RoleAssistant}
	if len(r.ToolCalls) > 0 {
		msg.ToolCalls = r.ToolCalls
	} else {
		content := r.Content
		msg.Content = &content
	}
	return &ChatCompletion{
		ID:       r.ID,
		Object:   "chat.completion",
		Created:  r.Created,
		Model:    r.Model,
		Provider: r.Provider,
		Choices: []Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: r.FinishReason(),
		}},
	}
}

// ToChunks renders the result as the ordered chunk sequence of an emulated
// stream: role, content (if any), tool calls (if any), finish.
func (r *Result) ToChunks() []ChatCompletionChunk {
	chunk := func(d Delta, finish *string) ChatCompletionChunk {
		return ChatCompletionChunk{
			ID:       r.ID,
			Object:   "chat.completion.chunk",
			Created:  r.Created,
			Model:    r.Model,
			Provider: r.Provider,
			Choices:  []ChunkChoice{{Index: 0, Delta: d, FinishReason: finish}},
		}
	}

	chunks := []ChatCompletionChunk{chunk(Delta{Role: RoleAssistant}, nil)}
	if r.Content != "" {
		chunks = append(chunks, chunk(Delta{Content: r.Content}, nil))
	}
	if len(r.ToolCalls) > 0 {
		calls := make([]ToolCall, len(r.ToolCalls))
		for i, tc := range r.ToolCalls {
			idx := i
			tc.Index = &idx
			calls[i] = tc
		}
		chunks = append(chunks, chunk(Delta{ToolCalls: calls}, nil))
	}
	finish := r.FinishReason()
	chunks = append(chunks, chunk(Delta{}, &finish))
	return chunks
}

// ModelList is the /v1/models response.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// ModelInfo describes one advertised model.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// NewModelList builds a model list from ids.
func NewModelList(ids []string) ModelList {
	list := ModelList{Object: "list", Data: make([]ModelInfo, 0, len(ids))}
	for _, id := range ids {
		list.Data = append(list.Data, ModelInfo{ID: id, Object: "model"})
	}
	return list
}

// String renders a message for logs.
func (m Message) String() string {
	return fmt.Sprintf("%s: %q", m.Role, m.Content)
}
