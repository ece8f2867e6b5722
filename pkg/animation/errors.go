package animation

import "errors"

var (
	// ErrInvalidLabel is returned for labels outside the vocabulary.
	ErrInvalidLabel = errors.New("invalid animation label")

	// ErrStopped is returned when playing on a machine that was stopped.
	ErrStopped = errors.New("animation machine stopped")
)
