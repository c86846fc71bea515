package engine

import (
	"errors"

	"github.com/nezumi0627/ClawBridge/pkg/provider"
)

// Sentinel errors for attempts and chains.
var (
	// ErrChainExhausted is matched by the error returned once every chain
	// candidate and the last resort failed.
	ErrChainExhausted = errors.New("all models failed")

	// ErrFiltered marks a reply that normalized to neither content nor
	// tool calls.
	ErrFiltered = errors.New("Response was filtered (likely internal reasoning/meta-talk)")

	// ErrNotReady marks a candidate whose gateway did not become ready in time.
	ErrNotReady = errors.New("server is not ready yet. Please wait a moment and try again.")
)

// ChainError reports an exhausted chain. It matches ErrChainExhausted and
// the last attempt error.
type ChainError struct {
	Attempts int
	Last     error
}

func (e *ChainError) Error() string {
	if e.Last == nil {
		return "All models failed."
	}
	return "All models failed. Last error: " + e.Last.Error()
}

func (e *ChainError) Unwrap() []error {
	return []error{ErrChainExhausted, e.Last}
}

// notReadyError names the backend that was not ready.
type notReadyError struct {
	backend string
}

func (e *notReadyError) Error() string {
	return e.backend + " " + ErrNotReady.Error()
}

func (e *notReadyError) Is(target error) bool {
	return target == ErrNotReady
}

// isRetryable reports whether the chain may advance past err.
func isRetryable(err error) bool {
	return !provider.IsDependencyMissing(err)
}
