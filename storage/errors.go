package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a compile record is not found.
	ErrNotFound = errors.New("compile record not found")

	// ErrClosed is returned when a closed or nil store is used.
	ErrClosed = errors.New("audit store not initialised")
)
