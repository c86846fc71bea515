package api

import "time"

// Connectivity error kinds.
const (
	ErrorKindAuthRequired  = "auth_required"
	ErrorKindRateLimited   = "rate_limited"
	ErrorKindModelNotFound = "model_not_found"
	ErrorKindUnknown       = "unknown"
)

// ProbeResult is the outcome of one connectivity probe against a
// (provider, model) pair.
type ProbeResult struct {
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Success   bool      `json:"success"`
	LatencyMs int64     `json:"latency"`
	Content   string    `json:"content,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_type,omitempty"`
	TestedAt  time.Time `json:"timestamp"`
}

// Key identifies the probed combination.
func (r ProbeResult) Key() string {
	return r.Provider + "/" + r.Model
}
