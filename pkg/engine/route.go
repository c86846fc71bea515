package engine

import (
	"errors"
	"fmt"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/provider"
)

// ErrNoBackend is returned when no backend can serve a model.
var ErrNoBackend = errors.New("no backend available")

// Route picks the backend for model by strict priority:
//
//  1. a backend pinned by the request,
//  2. a backend pinned by configuration,
//  3. fast authenticated backends that support the model and have credentials,
//  4. the supervised gateway when it is ready and supports the model,
//  5. remaining authenticated backends that support the model and have credentials,
//  6. the first open backend.
//
// Pins naming an unknown backend are ignored.
func (e *Engine) Route(cfg Config, model string, pins api.ProviderPins) (provider.Backend, error) {
	if name := pins.For(model); name != "" {
		if b, ok := e.registry.Get(name); ok {
			return b, nil
		}
	}
	if name := cfg.pinned(model); name != "" {
		if b, ok := e.registry.Get(name); ok {
			return b, nil
		}
	}

	for _, b := range e.registry.Tier(provider.TierFast) {
		if b.Supports(model) && b.Configured() {
			return b, nil
		}
	}
	for _, b := range e.registry.Tier(provider.TierGateway) {
		if provider.IsReady(b) && b.Supports(model) {
			return b, nil
		}
	}
	for _, b := range e.registry.Tier(provider.TierAuthenticated) {
		if b.Supports(model) && b.Configured() {
			return b, nil
		}
	}
	if open := e.registry.Tier(provider.TierOpen); len(open) > 0 {
		return open[0], nil
	}
	return nil, fmt.Errorf("%w for model %s", ErrNoBackend, model)
}
