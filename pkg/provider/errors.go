package provider

import (
	"errors"
	"fmt"
	"strings"
)

// BackendError is a failed completion attempt. Message is the text
// surfaced to clients; Err keeps the underlying cause for logs.
type BackendError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *BackendError) Error() string {
	return e.Message
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Errorf builds a BackendError for provider without an HTTP status.
func Errorf(provider, format string, args ...any) *BackendError {
	return &BackendError{Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// ErrEmptyResponse is returned when a backend answers with no text.
var ErrEmptyResponse = errors.New("empty response")

// ErrMissingCredentials is wrapped by backends called without an API key.
var ErrMissingCredentials = errors.New("missing api key")

// dependencyMarkers identify errors caused by a missing runtime dependency
// on the backend side. Retrying another model cannot fix them.
var dependencyMarkers = []string{
	"Missing Dependencies",
	"MissingRequirementsError",
}

// IsDependencyMissing reports whether err indicates a missing backend
// dependency.
func IsDependencyMissing(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range dependencyMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// StatusOf returns the HTTP status recorded on err, or 0.
func StatusOf(err error) int {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Status
	}
	return 0
}
