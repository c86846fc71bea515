package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Holder owns the active configuration. Readers take immutable snapshots
// with Current; writers replace the whole snapshot, so a request that has
// already read its snapshot is never affected by a concurrent update.
type Holder struct {
	path string

	mu        sync.Mutex
	current   atomic.Pointer[Config]
	listeners []func(*Config)
}

// NewHolder wraps cfg. When path is non-empty, updates are persisted there
// and Reload re-reads it.
func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	h.current.Store(cfg)
	return h
}

// Path returns the file backing the holder, or "".
func (h *Holder) Path() string { return h.path }

// Current returns the active snapshot. Callers must not modify it.
func (h *Holder) Current() *Config {
	return h.current.Load()
}

// OnChange registers fn to be called with every new snapshot.
func (h *Holder) OnChange(fn func(*Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Update applies mutate to a copy of the active snapshot, validates it,
// persists it when the holder is file-backed, and swaps it in. On any
// error the active snapshot is unchanged.
func (h *Holder) Update(mutate func(*Config)) (*Config, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.current.Load().Clone()
	mutate(next)
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	if h.path != "" {
		if err := Save(h.path, next); err != nil {
			return nil, fmt.Errorf("saving config: %w", err)
		}
	}
	h.swap(next)
	return next, nil
}

// Reload re-reads the backing file, keeping the last good snapshot on error.
func (h *Holder) Reload() (*Config, error) {
	if h.path == "" {
		return h.Current(), nil
	}
	next, err := Load(h.path)
	if err != nil {
		return h.Current(), fmt.Errorf("reload failed, keeping last good config: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.swap(next)
	return next, nil
}

// swap must be called with mu held.
func (h *Holder) swap(next *Config) {
	h.current.Store(next)
	for _, fn := range h.listeners {
		fn(next)
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Gateway.Args = append([]string(nil), c.Gateway.Args...)
	out.Gateway.ReadyMarkers = append([]string(nil), c.Gateway.ReadyMarkers...)
	out.Auth.APIKeys = append([]APIKeyConfig(nil), c.Auth.APIKeys...)
	out.Routing.Aliases = cloneMap(c.Routing.Aliases)
	out.Routing.ForceProvider = cloneMap(c.Routing.ForceProvider)
	out.Routing.Models = cloneMap(c.Routing.Models)
	if c.Routing.Fallbacks != nil {
		out.Routing.Fallbacks = make(map[string][]string, len(c.Routing.Fallbacks))
		for k, v := range c.Routing.Fallbacks {
			out.Routing.Fallbacks[k] = append([]string(nil), v...)
		}
	}
	return &out
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RedactedValue replaces secrets in Redacted output.
const RedactedValue = "********"

// secrets returns pointers to every secret field of c.
func (c *Config) secrets() []*string {
	out := []*string{
		&c.Providers.Groq.APIKey,
		&c.Providers.Gemini.APIKey,
		&c.Providers.Puter.APIKey,
		&c.Storage.Postgres.DSN,
		&c.Auth.JWT.Secret,
	}
	for i := range c.Auth.APIKeys {
		out = append(out, &c.Auth.APIKeys[i].Key)
	}
	return out
}

// Redacted returns a copy of c with every non-empty secret replaced by
// RedactedValue.
func (c *Config) Redacted() *Config {
	out := c.Clone()
	for _, s := range out.secrets() {
		if *s != "" {
			*s = RedactedValue
		}
	}
	return out
}

// RestoreRedacted copies secrets from prev into c wherever c still holds
// RedactedValue, so a redacted snapshot can be edited and written back.
func (c *Config) RestoreRedacted(prev *Config) {
	cur, old := c.secrets(), prev.secrets()
	for i, s := range cur {
		if *s == RedactedValue && i < len(old) {
			*s = *old[i]
		}
	}
}
