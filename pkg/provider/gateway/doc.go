// Package gateway implements the backend that talks to the supervised
// local inference gateway (a g4f server). The gateway speaks the OpenAI
// Chat Completions wire format and accepts a sub-provider hint; replies
// are returned as raw JSON for pkg/normalize to interpret.
package gateway
