package engine

import (
	"slices"
	"strings"

	"github.com/nezumi0627/ClawBridge/pkg/provider"
)

// baseModels are always advertised on /v1/models.
var baseModels = []string{"gpt-4o-mini", "gpt-4", "llama3"}

// workingModeler is implemented by backends with a dynamic model set.
type workingModeler interface {
	WorkingModels() []string
}

// Models returns the advertised model ids: the base set followed by every
// backend's working models, without duplicates.
func (e *Engine) Models() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(ids []string) {
		for _, id := range ids {
			if id != "" && !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	add(baseModels)
	for _, b := range e.registry.All() {
		if w, ok := b.(workingModeler); ok {
			add(w.WorkingModels())
		}
	}
	return out
}

// Combination is one (model, backend) pair offered to operators.
type Combination struct {
	Model    string `json:"model"`
	Provider string `json:"provider"`
	Display  string `json:"display"`
	Status   string `json:"status"`
}

// BackendSummary describes one backend for the management API.
type BackendSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Tier        string `json:"tier"`
	Status      string `json:"status"`
	Configured  bool   `json:"configured"`
	ModelCount  int    `json:"modelCount"`
}

// Catalog lists every (model, backend) combination sorted by model, and a
// summary per backend.
func (e *Engine) Catalog() ([]Combination, map[string]BackendSummary) {
	var combos []Combination
	summaries := make(map[string]BackendSummary)

	for _, b := range e.registry.All() {
		info := b.Info()
		status, online := "available", "online"
		if !provider.IsReady(b) {
			status, online = "initializing", "initializing"
		}

		models := info.Models
		if w, ok := b.(workingModeler); ok {
			if wm := w.WorkingModels(); len(wm) > 0 {
				models = wm
			}
		}
		for _, m := range models {
			combos = append(combos, Combination{
				Model:    m,
				Provider: b.Name(),
				Display:  m + " (@" + b.Name() + ")",
				Status:   status,
			})
		}
		summaries[b.Name()] = BackendSummary{
			Name:        info.DisplayName,
			Description: info.Description,
			Tier:        info.Tier.String(),
			Status:      online,
			Configured:  b.Configured(),
			ModelCount:  len(models),
		}
	}

	slices.SortStableFunc(combos, func(a, b Combination) int {
		return strings.Compare(a.Model, b.Model)
	})
	return combos, summaries
}
