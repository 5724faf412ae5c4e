package trigger

import "errors"

var (
	// ErrInvalidSpec is returned at registration time for unknown or malformed triggers.
	ErrInvalidSpec = errors.New("invalid trigger spec")
	// ErrNotRegistered is returned when forcing a firing for a watch the engine doesn't know.
	ErrNotRegistered = errors.New("trigger not registered")
	ErrNotStarted    = errors.New("trigger engine not started")
)
