package provider

import "sort"

// Registry holds the backends for the lifetime of the process. Order of
// registration is the priority order within a tier.
type Registry struct {
	backends []Backend
	byName   map[string]Backend
}

// NewRegistry creates a registry from backends in priority order.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{byName: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

// Register appends b. A backend with the same name replaces the earlier one
// in place.
func (r *Registry) Register(b Backend) {
	if _, ok := r.byName[b.Name()]; ok {
		for i, existing := range r.backends {
			if existing.Name() == b.Name() {
				r.backends[i] = b
			}
		}
	} else {
		r.backends = append(r.backends, b)
	}
	r.byName[b.Name()] = b
}

// Get returns the named backend.
func (r *Registry) Get(name string) (Backend, bool) {
	b, ok := r.byName[name]
	return b, ok
}

// All returns every backend in priority order.
func (r *Registry) All() []Backend {
	out := make([]Backend, len(r.backends))
	copy(out, r.backends)
	return out
}

// Tier returns the backends of tier t in priority order.
func (r *Registry) Tier(t Tier) []Backend {
	var out []Backend
	for _, b := range r.backends {
		if b.Info().Tier == t {
			out = append(out, b)
		}
	}
	return out
}

// Names returns the sorted backend names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
