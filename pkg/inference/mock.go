package inference

import (
	"context"
	"sync"
)

// Mock is an in-process Provider that answers from a script.
type Mock struct {
	// ChatFunc overrides the script when set.
	ChatFunc func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Err, when set, fails both Chat and Health.
	Err error

	mu       sync.Mutex
	replies  []string
	next     int
	requests []*ChatRequest
	closed   bool
}

// NewMock returns a mock that always replies "Mock response".
func NewMock() *Mock {
	return NewScriptedMock("Mock response")
}

// NewScriptedMock returns a mock that answers with replies in order and
// repeats the last one once the script runs out.
func NewScriptedMock(replies ...string) *Mock {
	return &Mock{replies: replies}
}

// WithError returns a mock whose Chat and Health always fail with err.
func WithError(err error) *Mock {
	return &Mock{Err: err}
}

// Chat records req and returns the next scripted reply.
func (m *Mock) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.replies) == 0 {
		return nil, WrapError("mock", ErrEmptyResponse)
	}
	reply := m.replies[min(m.next, len(m.replies)-1)]
	m.next++
	return &ChatResponse{
		Message:      NewAssistantMessage(reply),
		FinishReason: "stop",
		Usage:        Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

// Health returns Err.
func (m *Mock) Health(context.Context) error {
	return m.Err
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Requests returns every ChatRequest received, in order.
func (m *Mock) Requests() []*ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ChatRequest(nil), m.requests...)
}

// Reset forgets recorded requests and rewinds the script.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.next = 0
}

var _ Provider = (*Mock)(nil)
