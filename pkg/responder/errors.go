package responder

import "errors"

var (
	// ErrEmptyReply is returned when the model produced no reply text.
	ErrEmptyReply = errors.New("responder: empty reply")

	// ErrNoPublisher is returned when a generator is built without a publisher.
	ErrNoPublisher = errors.New("responder: publisher required")

	// ErrNoModel is returned when a generator is built without a chat provider.
	ErrNoModel = errors.New("responder: inference provider required")
)
