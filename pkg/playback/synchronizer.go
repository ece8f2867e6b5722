// Package playback presents agent responses: audio with lip-sync when a clip
// is attached, a reading timeout otherwise.
package playback

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/teslashibe/go-borp/pkg/metrics"
	"github.com/teslashibe/go-borp/pkg/protocol"
)

// Text length thresholds in runes.
const (
	ShortTextLimit  = 100
	MediumTextLimit = 200
)

// Timeouts are display durations for responses without audio.
type Timeouts struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// DefaultTimeouts returns 3s, 8s and 12s.
func DefaultTimeouts() Timeouts {
	return Timeouts{Short: 3 * time.Second, Medium: 8 * time.Second, Long: 12 * time.Second}
}

// For returns how long text stays on screen.
func (t Timeouts) For(text string) time.Duration {
	n := utf8.RuneCountInString(text)
	switch {
	case n < ShortTextLimit:
		return t.Short
	case n <= MediumTextLimit:
		return t.Medium
	default:
		return t.Long
	}
}

// Result describes how a presentation ended.
type Result struct {
	ResponseID string
	Outcome    string // metrics.OutcomeEnded, OutcomeTimeout or OutcomeFailed
	Err        error
	Elapsed    time.Duration
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithTimeouts overrides the no-audio display durations.
func WithTimeouts(t Timeouts) Option {
	return func(s *Synchronizer) { s.timeouts = t }
}

// WithSmoothing sets the lip-sync smoothing factor.
func WithSmoothing(f float64) Option {
	return func(s *Synchronizer) { s.smoothing = f }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Synchronizer) { s.logger = l }
}

// Synchronizer presents one response at a time on a single Element.
type Synchronizer struct {
	element   Element
	sink      ExpressionSink
	timeouts  Timeouts
	smoothing float64
	logger    zerolog.Logger

	play    sync.Mutex // serializes use of element
	lips    *LipSync
	mu      sync.Mutex
	blocked string
	gen     uint64 // bumped by Reset
}

// New creates a synchronizer driving element and reporting mouth shapes to sink.
func New(element Element, sink ExpressionSink, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		element:   element,
		sink:      sink,
		timeouts:  DefaultTimeouts(),
		smoothing: DefaultSmoothing,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lips = NewLipSync(sink, s.smoothing)
	return s
}

// Present starts presenting resp and returns immediately. done is called
// exactly once when the presentation ends, and never if ctx is cancelled first.
func (s *Synchronizer) Present(ctx context.Context, resp *protocol.AIResponse, done func(Result)) {
	go func() {
		start := time.Now()
		res := Result{ResponseID: resp.ID}
		if resp.HasAudio() {
			res.Err = s.playAudio(ctx, resp.AudioURL)
			res.Outcome = metrics.OutcomeEnded
			if res.Err != nil {
				res.Outcome = metrics.OutcomeFailed
			}
		} else {
			res.Err = s.wait(ctx, s.timeouts.For(resp.Text))
			res.Outcome = metrics.OutcomeTimeout
		}
		if ctx.Err() != nil {
			return
		}
		res.Elapsed = time.Since(start)
		if res.Err != nil {
			s.logger.Warn().Err(res.Err).Str("response_id", resp.ID).Msg("presentation failed")
		}
		if done != nil {
			done(res)
		}
	}()
}

func (s *Synchronizer) wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Synchronizer) playAudio(ctx context.Context, url string) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	s.play.Lock()
	defer s.play.Unlock()
	defer s.lips.Reset()

	if err := s.element.SetSource(ctx, url); err != nil {
		return err
	}
	err := s.element.Play(ctx, func(w []int16) { s.lips.Update(w) })
	if errors.Is(err, ErrAutoplayBlocked) {
		s.mu.Lock()
		stale := gen != s.gen
		if !stale {
			s.blocked = url
		}
		s.mu.Unlock()
		if !stale {
			s.logger.Info().Str("url", url).Msg("autoplay blocked, waiting for a gesture")
		}
	}
	return err
}

// Reset forgets any source waiting for a gesture, including one from a
// presentation still in flight. Call it when the audience changes scene.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.gen++
	s.blocked = ""
	s.mu.Unlock()
}

// Gesture unlocks the element and replays the last blocked source. It is
// best-effort and skipped while a presentation holds the element.
func (s *Synchronizer) Gesture(ctx context.Context) error {
	if u, ok := s.element.(Unlocker); ok {
		u.Unlock()
	}
	s.mu.Lock()
	url := s.blocked
	s.blocked = ""
	s.mu.Unlock()
	if url == "" {
		return nil
	}
	if !s.play.TryLock() {
		return nil
	}
	defer s.play.Unlock()
	defer s.lips.Reset()

	if err := s.element.SetSource(ctx, url); err != nil {
		return err
	}
	return s.element.Play(ctx, func(w []int16) { s.lips.Update(w) })
}

// Blocked returns the source waiting for a gesture, if any.
func (s *Synchronizer) Blocked() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked
}

// Graphs reports how many output graphs the element has built.
func (s *Synchronizer) Graphs() int { return s.element.Graphs() }
