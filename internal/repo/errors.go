package repo

import "errors"

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a status update would violate
	// the monotonic lifecycle of a record.
	ErrInvalidTransition = errors.New("invalid status transition")
)
