package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrClosed is returned when a store is used after Close.
	ErrClosed = errors.New("store closed")
)
