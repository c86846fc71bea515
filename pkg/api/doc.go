// Package api defines the wire types of the ClawBridge chat completion
// surface.
//
// The package covers the OpenAI-style request ([ChatRequest]), the
// conversation primitives shared by every backend ([Message], [ToolCall],
// [ToolDefinition]), the normalized result produced by the routing engine
// ([Result]) and its two wire renderings ([ChatCompletion] and
// [ChatCompletionChunk]), plus the structured [APIError] returned to
// clients.
//
// Decoding is lenient in the places real clients are sloppy: message
// content may be a string, an array of text parts, or absent, and tool
// call arguments may arrive as a JSON string or as an object. After
// decoding, every [Message] carries a plain string content and every
// [ToolCall] carries JSON-encoded string arguments.
package api
