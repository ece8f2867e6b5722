package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBaseURL is returned when the collaborator URL is missing.
	ErrNoBaseURL = errors.New("backend: base URL required")

	// ErrNoAudio is returned when UploadAudio is given an empty buffer.
	ErrNoAudio = errors.New("backend: empty audio")

	// ErrNoUploadURL is returned when an upload succeeds without a URL.
	ErrNoUploadURL = errors.New("backend: upload response missing url")
)

// StatusError is a non-2xx answer from the collaborator server.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("backend %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsRetryable reports whether the request may succeed if repeated.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
