package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Chain is a Provider that falls back through providers in order. The agent
// uses it to keep replying when the primary endpoint is down.
type Chain struct {
	providers []Provider
	logger    zerolog.Logger
}

// NewChain returns ErrProviderUnavailable when providers is empty.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(zerolog.Nop(), providers...)
}

func NewChainWithLogger(logger zerolog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		providers: providers,
		logger:    logger.With().Str("component", "inference.chain").Logger(),
	}, nil
}

// Chat returns the first successful completion. When every provider fails
// the result is a *ChainError holding each failure.
func (c *Chain) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	failed := make([]error, 0, len(c.providers))
	for i, p := range c.providers {
		resp, err := p.Chat(ctx, req)
		if err == nil {
			if i > 0 {
				c.logger.Info().Str("provider", label(p, i)).Int("skipped", i).Msg("served by fallback")
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn().Err(err).Str("provider", label(p, i)).Msg("chat failed")
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
	return WrapError("chain", errors.Join(errs...))
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

func label(p Provider, i int) string {
	if n, ok := p.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("#%d", i)
}

var _ Provider = (*Chain)(nil)
