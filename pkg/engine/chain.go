package engine

import (
	"context"
	"time"

	"github.com/nezumi0627/ClawBridge/pkg/api"
	"github.com/nezumi0627/ClawBridge/pkg/debug"
	"github.com/nezumi0627/ClawBridge/pkg/storage"
)

// Chain is the ordered, de-duplicated list of models tried for one request.
type Chain []string

// ResolveAlias maps model through the request-level aliases first and the
// configured aliases second.
func ResolveAlias(model string, opts *api.RoutingOptions, aliases map[string]string) string {
	if opts != nil {
		if target := opts.Aliases[model]; target != "" {
			return target
		}
	}
	if target := aliases[model]; target != "" {
		return target
	}
	return model
}

// BuildChain returns [model] followed by fallbacks, without duplicates or
// empty entries, keeping first occurrences.
func BuildChain(model string, fallbacks []string) Chain {
	seen := make(map[string]bool, len(fallbacks)+1)
	chain := make(Chain, 0, len(fallbacks)+1)
	for _, m := range append([]string{model}, fallbacks...) {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		chain = append(chain, m)
	}
	return chain
}

// demote moves candidates whose backend failed within the cooldown to the
// end of the chain, keeping relative order. Nothing is dropped.
func (e *Engine) demote(ctx context.Context, cfg Config, chain Chain, pins api.ProviderPins) Chain {
	if e.failures == nil || cfg.FailureCooldown <= 0 || len(chain) < 2 {
		return chain
	}

	var fresh, cooling Chain
	now := time.Now()
	for _, m := range chain {
		b, err := e.Route(cfg, m, pins)
		if err != nil {
			fresh = append(fresh, m)
			continue
		}
		at, ok, err := e.failures.FailedSince(ctx, storage.FailureKey(b.Name(), m))
		if err != nil || !ok || now.Sub(at) >= cfg.FailureCooldown {
			fresh = append(fresh, m)
			continue
		}
		debug.Log("engine", "demoting cooling candidate", "model", m, "backend", b.Name())
		cooling = append(cooling, m)
	}
	return append(fresh, cooling...)
}
