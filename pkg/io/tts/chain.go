package tts

import (
	"context"
	"fmt"

	"github.com/xpanvictor/vocall/pkg/Logger"
)

// Chain implements Provider by trying multiple providers in order. The
// first success wins.
type Chain struct {
	providers []Provider
	logger    *Logger.Logger
}

func NewChain(logger *Logger.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("tts chain needs at least one provider")
	}
	return &Chain{providers: providers, logger: logger}, nil
}

func (c *Chain) Name() string { return "chain" }

// Identity is the head provider's identity. A Result from a fallback
// carries the fallback's own identity, so callers can tell when the
// advertised voice was not the one that answered.
func (c *Chain) Identity() string { return c.providers[0].Identity() }

func (c *Chain) Synthesize(ctx context.Context, text string) (*Result, error) {
	var errs []error
	for i, p := range c.providers {
		result, err := p.Synthesize(ctx, text)
		if err == nil {
			if i > 0 {
				c.logger.Infof("tts fallback %s succeeded for %d chars", p.Name(), len(text))
			}
			return result, nil
		}
		errs = append(errs, err)
		c.logger.Warnf("tts provider %s failed, trying next: %v", p.Name(), err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, &ChainError{Errors: errs}
}

func (c *Chain) Close() error {
	var lastErr error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

var _ Provider = (*Chain)(nil)
