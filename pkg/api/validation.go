package api

import (
	"fmt"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxMessages int
	MaxTools    int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxMessages: 1000,
		MaxTools:    128,
	}
}

// ValidateRequest checks a ChatRequest before any backend is contacted. It
// returns an *APIError describing the first failure, or nil.
func ValidateRequest(req *ChatRequest, cfg ValidationConfig) *APIError {
	msgs := req.Conversation()
	if len(msgs) == 0 {
		return NewInvalidRequestError("messages", "messages or prompt is required")
	}

	if cfg.MaxMessages > 0 && len(msgs) > cfg.MaxMessages {
		return NewInvalidRequestError("messages",
			fmt.Sprintf("messages exceeds maximum of %d", cfg.MaxMessages))
	}

	if cfg.MaxTools > 0 && len(req.Tools) > cfg.MaxTools {
		return NewInvalidRequestError("tools",
			fmt.Sprintf("tools exceeds maximum of %d", cfg.MaxTools))
	}

	for i, m := range msgs {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		default:
			return NewInvalidRequestError(fmt.Sprintf("messages[%d].role", i),
				fmt.Sprintf("unknown role %q", m.Role))
		}
	}

	for i, t := range req.Tools {
		if t.Name == "" {
			return NewInvalidRequestError(fmt.Sprintf("tools[%d].function.name", i), "tool name is required")
		}
	}

	return nil
}
