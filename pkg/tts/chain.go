package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Chain is a Provider that falls back through voices in order, so a reply
// still gets audio when the primary voice service is down.
type Chain struct {
	providers []Provider
	logger    zerolog.Logger
}

// NewChain creates a provider chain that tries providers in order.
// Nil providers are skipped; at least one real provider is required.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(zerolog.Nop(), providers...)
}

// NewChainWithLogger creates a provider chain with a custom logger.
func NewChainWithLogger(logger zerolog.Logger, providers ...Provider) (*Chain, error) {
	var live []Provider
	for _, p := range providers {
		if p != nil {
			live = append(live, p)
		}
	}
	if len(live) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		providers: live,
		logger:    logger.With().Str("component", "tts.chain").Logger(),
	}, nil
}

// Synthesize returns audio from the first provider that produces it. When
// every provider fails the result is a *ChainError holding each failure.
func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	failed := make([]error, 0, len(c.providers))
	for i, p := range c.providers {
		result, err := p.Synthesize(ctx, text)
		if err == nil {
			if i > 0 {
				c.logger.Info().Int("skipped", i).Int("chars", len(text)).Msg("served by fallback voice")
			}
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn().Err(err).Int("index", i).Msg("synthesis failed")
		failed = append(failed, err)
	}
	return nil, &ChainError{Errors: failed}
}

// Health succeeds while at least one provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("all %d providers unhealthy: %w", len(c.providers), errors.Join(errs...))
}

// Close closes every provider and joins their errors.
func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// Providers returns the chain in fallback order.
func (c *Chain) Providers() []Provider {
	return c.providers
}

var _ Provider = (*Chain)(nil)
