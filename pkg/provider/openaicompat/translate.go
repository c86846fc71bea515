package openaicompat

import (
	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/provider"
)

// TranslateToChat converts a provider Request into a ChatCompletionRequest
// suitable for the /v1/chat/completions endpoint. model overrides
// req.Model when non-empty.
func TranslateToChat(req *provider.Request, model string) ChatCompletionRequest {
	if model == "" {
		model = req.Model
	}
	cr := ChatCompletionRequest{
		Model:    model,
		Messages: TranslateMessages(req.Messages),
		Tools:    TranslateTools(req.Tools),
		Provider: req.ProviderHint,
	}
	return cr
}

// TranslateMessages converts messages to the wire format.
func TranslateMessages(msgs []api.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := ChatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, ChatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: ChatFunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, cm)
	}
	return out
}

// TranslateTools converts tool definitions to the wire format.
func TranslateTools(tools []api.ToolDefinition) []ChatTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]ChatTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, ChatTool{
			Type: "function",
			Function: ChatFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}
