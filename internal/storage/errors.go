package storage

import "errors"

// Storage errors shared by every backend.
var (
	// ErrNotFound is returned when a requested record or object does not exist.
	// Tick sources return it for a feed that was never delivered.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when writing a day that is already persisted.
	// Candle and book-feature days are written once and never updated.
	ErrDuplicateKey = errors.New("duplicate key: day already persisted")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
