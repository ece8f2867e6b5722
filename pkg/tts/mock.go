package tts

import (
	"context"
	"sync"
	"time"
)

// silentFrame is one silent MPEG-1 Layer III frame header.
var silentFrame = []byte{0xFF, 0xFB, 0x90, 0x64, 0x00, 0x00, 0x00, 0x00}

// Mock is an in-process Provider. By default it answers every request with
// a short silent MP3 clip whose length grows with the text.
type Mock struct {
	// SynthesizeFunc overrides the default clip.
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)

	mu     sync.Mutex
	texts  []string
	closed bool
}

// NewMock returns a Mock producing silent clips.
func NewMock() *Mock {
	return &Mock{}
}

// WithError makes every Synthesize call fail with err.
func (m *Mock) WithError(err error) *Mock {
	m.SynthesizeFunc = func(context.Context, string) (*AudioResult, error) {
		return nil, err
	}
	return m
}

// Synthesize records text and returns the configured result.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return nil, WrapError("mock", ErrProviderUnavailable)
	}
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text)
	}
	return silentClip(text), nil
}

func silentClip(text string) *AudioResult {
	n := len([]rune(text)) + 1
	audio := make([]byte, 0, n*len(silentFrame))
	for i := 0; i < n; i++ {
		audio = append(audio, silentFrame...)
	}
	return &AudioResult{
		Audio:     audio,
		Format:    AudioFormat{Encoding: EncodingMP3, SampleRate: EncodingMP3.SampleRate(), Channels: 1},
		Duration:  time.Duration(n-1) * 60 * time.Millisecond,
		CharCount: n - 1,
		LatencyMs: 1,
	}
}

// Health reports ErrProviderUnavailable once the mock is closed.
func (m *Mock) Health(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return WrapError("mock", ErrProviderUnavailable)
	}
	return nil
}

// Close marks the mock unavailable.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Texts returns every text passed to Synthesize, in order.
func (m *Mock) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

var _ Provider = (*Mock)(nil)
