package inference

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoModel             = errors.New("inference: model required")
	ErrNoBaseURL           = errors.New("inference: base URL required")
	ErrProviderUnavailable = errors.New("inference: provider unavailable")
	ErrEmptyResponse       = errors.New("inference: empty response")

	// ErrNoJSON means a reply held no JSON object, even after repair.
	ErrNoJSON = errors.New("inference: no JSON object in response")
)

// APIError is a non-2xx answer from a chat completions API.
type APIError struct {
	StatusCode int
	Message    string
	Code       string // provider error code, if any
	Provider   string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("inference [%s]: status %d", e.Provider, e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	return msg + ": " + e.Message
}

// IsUnauthorized reports a rejected API key.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsRetryable reports rate limiting and server-side failures.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// ProviderError tags err with the provider that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return "inference [" + e.Provider + "]: " + e.Err.Error() }

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError returns nil for a nil err.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// ChainError collects the failure of every provider in a Chain, in order.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "inference: chain failed"
	case 1:
		return "inference: chain: " + e.Errors[0].Error()
	}
	return fmt.Sprintf("inference: %d providers failed, last: %v", len(e.Errors), e.Errors[len(e.Errors)-1])
}

func (e *ChainError) Unwrap() []error { return e.Errors }
