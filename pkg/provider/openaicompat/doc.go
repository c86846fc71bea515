// Package openaicompat provides the shared client for OpenAI-compatible
// Chat Completions endpoints that are called with raw JSON bodies. It
// handles request serialization, message translation, and error mapping.
//
// The gateway and puter adapters use it to reach the supervised local
// gateway, which accepts a sub-provider hint the typed SDKs cannot send.
package openaicompat
