// Package provider defines the backend abstraction used by the routing
// engine. Each adapter (groq, gemini, pollinations, puter, gateway) turns a
// conversation into a single raw completion string; interpreting that
// string is left to pkg/normalize. Adapters are registered once at startup
// in a [Registry] whose order is the routing priority within a tier.
package provider
