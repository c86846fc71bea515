package gateway

import "time"

// Config holds configuration for the gateway adapter.
type Config struct {
	// BaseURL is the gateway URL (e.g., "http://127.0.0.1:1338").
	BaseURL string

	// Timeout for individual HTTP requests. Defaults to 120s.
	Timeout time.Duration
}

// Status exposes the supervised process state the adapter depends on.
type Status interface {
	Ready() bool
	WorkingModels() []string
}
