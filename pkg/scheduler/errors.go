package scheduler

import "errors"

var (
	// ErrDuplicateTask is returned when registering a name twice.
	ErrDuplicateTask = errors.New("scheduler: duplicate task")

	// ErrInvalidTask is returned for tasks without a body or a positive interval.
	ErrInvalidTask = errors.New("scheduler: invalid task")

	// ErrTaskPanic wraps a value recovered from a panicking task.
	ErrTaskPanic = errors.New("scheduler: task panicked")
)
