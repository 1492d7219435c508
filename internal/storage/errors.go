package storage

import "errors"

// Storage errors shared by all implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrVersionConflict is returned when an optimistic update finds a
	// coin version different from the one the caller read. The caller
	// must re-read coin state and retry the whole trade.
	ErrVersionConflict = errors.New("version conflict: coin state changed concurrently")
)
