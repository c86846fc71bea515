package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// models is the catalog served on /v1/models.
var models = []string{"gpt-4o-mini", "gpt-4", "gpt-4o", "llama3", "command-r"}

// Model names that trigger canned failures.
const (
	modelRateLimited = "mock-rate-limited"
	modelMissingDep  = "mock-missing-dep"
)

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("GET /v1/models", handleModels)
	return mux
}

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", "invalid_request_error")
		return
	}

	switch req.Model {
	case modelRateLimited:
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded, retry later", "rate_limit_error")
		return
	case modelMissingDep:
		msg := "ModuleNotFoundError: No module named 'curl_cffi'"
		fmt.Fprintln(os.Stderr, msg)
		writeError(w, http.StatusInternalServerError, msg, "server_error")
		return
	}

	writeJSON(w, respond(&req))
}

// respond picks a canned answer. Requests that offer tools get a tool
// call; everything else gets a short text reply.
func respond(req *openai.ChatCompletionRequest) openai.ChatCompletionResponse {
	resp := openai.ChatCompletionResponse{
		ID:      "chatcmpl-mock",
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Usage:   openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
	if resp.Model == "" {
		resp.Model = "gpt-4o-mini"
	}

	choice := openai.ChatCompletionChoice{
		Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant},
		FinishReason: openai.FinishReasonStop,
	}
	if len(req.Tools) > 0 && req.Tools[0].Function != nil {
		choice.Message.ToolCalls = []openai.ToolCall{{
			ID:   "call_mock_1",
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      req.Tools[0].Function.Name,
				Arguments: `{}`,
			},
		}}
		choice.FinishReason = openai.FinishReasonToolCalls
	} else {
		choice.Message.Content = reply(lastUserMessage(req))
	}
	resp.Choices = []openai.ChatCompletionChoice{choice}
	return resp
}

func reply(prompt string) string {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "in one word"):
		return "Hello"
	case strings.Contains(lower, "count from 1 to 5"):
		return "1, 2, 3, 4, 5"
	default:
		return "Hello, nice day!"
	}
}

func lastUserMessage(req *openai.ChatCompletionRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == openai.ChatMessageRoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

func handleModels(w http.ResponseWriter, _ *http.Request) {
	list := openai.ModelsList{Models: make([]openai.Model, 0, len(models))}
	for _, id := range models {
		list.Models = append(list.Models, openai.Model{ID: id, Object: "model", OwnedBy: "mock-gateway"})
	}
	writeJSON(w, map[string]any{"object": "list", "data": list.Models})
}

func writeError(w http.ResponseWriter, status int, msg, typ string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(openai.ErrorResponse{ //nolint:errcheck
		Error: &openai.APIError{Message: msg, Type: typ, HTTPStatusCode: status},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
