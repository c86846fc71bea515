package connectivity

import "fmt"

// GatewayProvider is the catalog entry extended with the supervised
// gateway's working models.
const GatewayProvider = "g4f"

// CatalogEntry lists the models probed for one provider.
type CatalogEntry struct {
	Provider string
	Models   []string
}

// DefaultCatalog is the probe catalog in run order. Providers without
// credentials stay in the catalog and fail with ErrorKindAuthRequired.
var DefaultCatalog = []CatalogEntry{
	{Provider: "gemini", Models: []string{"gemini-2.1-flash"}},
	{Provider: "groq", Models: []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"}},
	{Provider: "puter", Models: []string{"gpt-4o-mini", "claude-3-7-sonnet-latest", "deepseek-chat"}},
	{Provider: GatewayProvider, Models: []string{"gpt-4o", "gpt-4o-mini", "gpt-4", "deepseek-chat", "command-r"}},
}

// Combination is one (provider, model) pair to probe.
type Combination struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Display  string `json:"display"`
}

func newCombination(provider, model string) Combination {
	return Combination{Provider: provider, Model: model, Display: displayName(provider, model)}
}

func displayName(provider, model string) string {
	return fmt.Sprintf("%s (@%s)", model, provider)
}

// Combinations expands the catalog into probe order. The gateway entry is
// extended with the gateway's current working models, without duplicates.
func (r *Runner) Combinations() []Combination {
	var out []Combination
	for _, entry := range r.catalog {
		models := entry.Models
		if entry.Provider == GatewayProvider && r.gateway != nil {
			models = appendUnique(models, r.gateway.WorkingModels())
		}
		for _, m := range models {
			out = append(out, newCombination(entry.Provider, m))
		}
	}
	return out
}

func (r *Runner) models(provider string) ([]string, bool) {
	for _, entry := range r.catalog {
		if entry.Provider != provider {
			continue
		}
		models := entry.Models
		if provider == GatewayProvider && r.gateway != nil {
			models = appendUnique(models, r.gateway.WorkingModels())
		}
		return models, true
	}
	return nil, false
}

func appendUnique(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, m := range list {
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}
