// Package retry implements exponential backoff with jitter.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Config configures retry behavior with exponential backoff.
type Config struct {
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // upper bound for any single delay
	Multiplier float64       // growth factor per attempt
	Jitter     bool          // add up to ±10% random jitter
}

// DefaultConfig returns a retry configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Delay returns the wait before retry number attempt (0-based).
func (c Config) Delay(attempt int) time.Duration {
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(c.BaseDelay) * math.Pow(mult, float64(attempt))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(c.BaseDelay)
		}
	}
	return time.Duration(delay)
}

// permanent marks an error that must not be retried.
type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Do runs op until it succeeds, returns a Permanent error, runs out of
// retries, or ctx is done. The last error is returned unwrapped.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		var p *permanent
		if errors.As(err, &p) {
			return p.err
		}
		if attempt == cfg.MaxRetries {
			break
		}
		t := time.NewTimer(cfg.Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}
	}
	return err
}

// Backoff is a stateful delay sequence for reconnect loops.
// It is not safe for concurrent use.
type Backoff struct {
	cfg     Config
	attempt int
}

// NewBackoff creates a backoff between min and max doubling each step.
func NewBackoff(min, max time.Duration) *Backoff {
	return &Backoff{cfg: Config{BaseDelay: min, MaxDelay: max, Multiplier: 2, Jitter: true}}
}

// Next returns the next delay and advances the sequence.
func (b *Backoff) Next() time.Duration {
	d := b.cfg.Delay(b.attempt)
	if b.cfg.MaxDelay <= 0 || d < b.cfg.MaxDelay {
		b.attempt++
	}
	return d
}

// Attempts returns how many delays were handed out since the last Reset.
func (b *Backoff) Attempts() int { return b.attempt }

// Reset restarts the sequence after a successful connection.
func (b *Backoff) Reset() { b.attempt = 0 }
