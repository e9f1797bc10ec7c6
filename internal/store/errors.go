package store

import "errors"

// Sentinel errors returned by Store operations. Handlers translate these
// into HTTP status codes at the boundary.
var (
	// ErrUnknownTable is returned when a table was never declared in the schema.
	ErrUnknownTable = errors.New("unknown table")

	// ErrNotFound is returned when no record with the requested id exists.
	ErrNotFound = errors.New("record not found")

	// ErrValidation is returned when a record carries fields the table
	// schema does not declare.
	ErrValidation = errors.New("invalid record")

	// ErrPersistence wraps any I/O failure while flushing the store to disk.
	// The in-memory state is rolled back before it is returned.
	ErrPersistence = errors.New("persistence failure")
)
