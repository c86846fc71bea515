package normalize

import (
	"encoding/json"

	"github.com/nezumi0627/ClawBridge/pkg/api"
)

// object is a decoded JSON object with its members left raw.
type object map[string]json.RawMessage

// shapeMatcher recognizes one JSON reply shape. Terminal shapes end
// normalization immediately with their result.
type shapeMatcher struct {
	name     string
	terminal bool
	match    func(obj object) bool
	extract  func(obj object) Parsed
}

// shapes are tried in order; the first match wins.
var shapes = []shapeMatcher{
	{
		name:     "tool_invocation",
		terminal: true,
		match:    isToolInvocation,
		extract:  extractToolInvocation,
	},
	{
		name:  "choices_envelope",
		match: func(obj object) bool { return choicesMessage(obj) != nil },
		extract: func(obj object) Parsed {
			return extractEnvelope(choicesMessage(obj))
		},
	},
	{
		name:  "message_envelope",
		match: func(obj object) bool { return nestedObject(obj, "message") != nil },
		extract: func(obj object) Parsed {
			return extractEnvelope(nestedObject(obj, "message"))
		},
	},
	{
		name:    "top_level",
		match:   func(object) bool { return true },
		extract: extractEnvelope,
	},
}

// matchShape returns the first matcher accepting obj.
func matchShape(obj object) (shapeMatcher, bool) {
	for _, s := range shapes {
		if s.match(obj) {
			return s, true
		}
	}
	return shapeMatcher{}, false
}

// decodeObject parses s as a JSON object.
func decodeObject(s string) (object, bool) {
	var obj object
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// isToolInvocation reports whether obj has a non-empty string "name" and a
// present, non-empty "arguments".
func isToolInvocation(obj object) bool {
	var name string
	if err := json.Unmarshal(obj["name"], &name); err != nil || name == "" {
		return false
	}
	args, ok := obj["arguments"]
	if !ok {
		return false
	}
	switch string(args) {
	case "", "null", `""`, "false", "0":
		return false
	}
	return true
}

func extractToolInvocation(obj object) Parsed {
	var name string
	json.Unmarshal(obj["name"], &name)
	return Parsed{
		ToolCalls: []api.ToolCall{api.NewToolCall(name, api.EncodeArguments(obj["arguments"]))},
	}
}

func nestedObject(obj object, key string) object {
	raw, ok := obj[key]
	if !ok {
		return nil
	}
	inner, ok := decodeObject(string(raw))
	if !ok {
		return nil
	}
	return inner
}

func choicesMessage(obj object) object {
	raw, ok := obj["choices"]
	if !ok {
		return nil
	}
	var choices []object
	if err := json.Unmarshal(raw, &choices); err != nil || len(choices) == 0 || choices[0] == nil {
		return nil
	}
	return nestedObject(choices[0], "message")
}

// extractEnvelope pulls content, text, and tool_calls from an OpenAI-like
// message object. A non-empty "text" overrides "content".
func extractEnvelope(target object) Parsed {
	var p Parsed
	if raw, ok := target["content"]; ok {
		p.Content = api.ExtractContent(raw)
	}
	if raw, ok := target["text"]; ok {
		if text := api.ExtractContent(raw); text != "" {
			p.Content = text
		}
	}
	if raw, ok := target["tool_calls"]; ok {
		var calls []api.ToolCall
		if err := json.Unmarshal(raw, &calls); err == nil {
			for _, tc := range calls {
				if tc.Function.Name == "" {
					continue
				}
				if tc.ID == "" {
					tc.ID = api.NewToolCallID()
				}
				if tc.Type == "" {
					tc.Type = "function"
				}
				tc.Index = nil
				p.ToolCalls = append(p.ToolCalls, tc)
			}
		}
	}
	return p
}
