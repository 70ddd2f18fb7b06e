package store

import "errors"

var (
	// ErrNotFound is returned for an unknown conversation or agent.
	ErrNotFound = errors.New("not found")

	// ErrCorrupted is returned when persisted data cannot be parsed.
	ErrCorrupted = errors.New("persisted data is corrupted")

	// ErrNotUpdated is returned by an update that changes nothing.
	ErrNotUpdated = errors.New("not updated")
)
