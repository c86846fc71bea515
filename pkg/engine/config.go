package engine

import "time"

// DefaultModel is used when neither the request nor the config names one.
const DefaultModel = "gpt-4o-mini"

// Config holds routing configuration. The engine reads a snapshot per
// request, so a config update never affects a request in flight.
type Config struct {
	// DefaultModel is used when the request omits the model field.
	DefaultModel string

	// Aliases maps requested model names to the model actually routed.
	Aliases map[string]string

	// Fallbacks lists the models tried, in order, after a model fails.
	Fallbacks map[string][]string

	// ForceProvider pins a model to a backend by name.
	ForceProvider map[string]string

	// Models pins a model to a backend by name. Consulted after ForceProvider.
	Models map[string]string

	// GatewayWait bounds how long a candidate waits for its supervised
	// gateway to become ready. WaitStep is the polling interval.
	GatewayWait time.Duration
	WaitStep    time.Duration

	// AttemptTimeout bounds each completion call. Zero means no limit
	// beyond the request context.
	AttemptTimeout time.Duration

	// FailureCooldown demotes a (backend, model) pair to the end of the
	// chain while its last failure is more recent than this. Zero disables
	// demotion.
	FailureCooldown time.Duration

	// LastResortProvider and LastResortModel name the pair tried once the
	// chain is exhausted. An empty provider disables the last resort.
	LastResortProvider string
	LastResortModel    string
}

func (c Config) defaultModel() string {
	if c.DefaultModel == "" {
		return DefaultModel
	}
	return c.DefaultModel
}

func (c Config) waitStep() time.Duration {
	if c.WaitStep <= 0 {
		return time.Second
	}
	return c.WaitStep
}

// pinned returns the backend configured for model, or "".
func (c Config) pinned(model string) string {
	if name := c.ForceProvider[model]; name != "" {
		return name
	}
	return c.Models[model]
}
