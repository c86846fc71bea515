// Package engine implements the routing engine for ClawBridge. Engine.Handle
// resolves the requested model through aliases, builds the fallback chain,
// routes each candidate to a backend by strict priority, rewrites the
// conversation for backends without native function calling, and
// normalizes the raw reply. Missing-dependency errors abort the chain;
// every other failure advances it, and an exhausted chain gets one
// last-resort attempt against a fixed backend.
package engine
