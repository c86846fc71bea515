// Package polyfill lets backends without native function calling take part
// in tool-using conversations. Tool schemas are described in a system
// prompt with a strict JSON reply contract, and tool results are replayed
// as user messages. The reply side of the contract is handled by
// pkg/normalize.
package polyfill

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nezumi0627/ClawBridge/pkg/api"
)

// MaxToolResultChars bounds the size of a replayed tool result.
const MaxToolResultChars = 4000

const (
	truncationMarker = "\n... [Output Truncated] ..."
	reminder         = "\n(Remember: If you use a tool, output ONLY the JSON object. No explanation.)"
)

// toolDesc is the prompt rendering of one tool.
type toolDesc struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// SystemPrompt renders the tool instruction block, or "" without tools.
func SystemPrompt(tools []api.ToolDefinition) string {
	if len(tools) == 0 {
		return ""
	}
	descs := make([]toolDesc, len(tools))
	for i, t := range tools {
		descs[i] = toolDesc{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
	}
	schema, err := json.MarshalIndent(descs, "", "  ")
	if err != nil {
		schema = []byte("[]")
	}

	var b strings.Builder
	b.WriteString("[Tool Support Enabled]\n")
	b.WriteString("You have access to the following tools:\n")
	b.Write(schema)
	b.WriteString("\n\nIf you decide to use a tool, you MUST respond with a JSON object in the following format ONLY:\n")
	b.WriteString("{\n  \"name\": \"<tool_name>\",\n  \"arguments\": <parameters_object>\n}\n\n")
	b.WriteString("Example:\n{\n  \"name\": \"exec\",\n  \"arguments\": { \"command\": \"echo hello\" }\n}\n\n")
	b.WriteString("Do not include any other text when using a tool. Just the JSON.")
	return b.String()
}

// Apply returns a rewritten copy of messages for a backend that lacks
// native tool support. The input slice and its messages are not modified.
func Apply(messages []api.Message, tools []api.ToolDefinition) []api.Message {
	out := make([]api.Message, 0, len(messages)+1)
	for _, m := range messages {
		switch {
		case m.Role == api.RoleTool:
			out = append(out, toolResult(m))
		case m.Role == api.RoleAssistant && len(m.ToolCalls) > 0:
			out = append(out, assistantCalls(m))
		default:
			cp := m
			cp.ToolCalls = nil
			out = append(out, cp)
		}
	}

	if len(tools) == 0 {
		return out
	}

	prompt := SystemPrompt(tools)
	injected := false
	for i := range out {
		if out[i].Role == api.RoleSystem {
			out[i].Content += "\n\n" + prompt
			injected = true
			break
		}
	}
	if !injected {
		out = append([]api.Message{{Role: api.RoleSystem, Content: prompt}}, out...)
	}

	if last := len(out) - 1; out[last].Role == api.RoleUser {
		out[last].Content += reminder
	}
	return out
}

// toolResult frames a tool message as a user turn.
func toolResult(m api.Message) api.Message {
	return api.Message{
		Role: api.RoleUser,
		Content: fmt.Sprintf("[System: Tool Execution Result]\n(ID: %s)\n\n%s\n\n"+
			"Existing tool results detected. Please analyze the result above and respond to the user.",
			m.ToolCallID, Truncate(m.Content, MaxToolResultChars)),
	}
}

// assistantCalls renders prior tool calls in the same JSON contract the
// model is asked to answer with.
func assistantCalls(m api.Message) api.Message {
	parts := make([]string, 0, len(m.ToolCalls)+1)
	if strings.TrimSpace(m.Content) != "" {
		parts = append(parts, m.Content)
	}
	for _, tc := range m.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			quoted, _ := json.Marshal(tc.Function.Arguments)
			args = quoted
		}
		call, _ := json.Marshal(struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}{tc.Function.Name, args})
		parts = append(parts, string(call))
	}
	return api.Message{Role: api.RoleAssistant, Content: strings.Join(parts, "\n")}
}

// Truncate cuts s to max runes and appends the truncation marker.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + truncationMarker
}
