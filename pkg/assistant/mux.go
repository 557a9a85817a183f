package assistant

import (
	"context"
	"fmt"

	"github.com/xpanvictor/vocall/pkg/Logger"
)

// Mux tries each backing assistant in order until one answers. A hosted
// model flaking mid-call should degrade to the fallback, not drop the call.
type Mux struct {
	chain  []Assistant
	logger *Logger.Logger
}

func NewMux(logger *Logger.Logger, chain ...Assistant) *Mux {
	return &Mux{chain: chain, logger: logger}
}

func (m *Mux) Name() string { return "mux" }

func (m *Mux) Reply(ctx context.Context, msgs []Message) (string, error) {
	var lastErr error
	for _, a := range m.chain {
		reply, err := a.Reply(ctx, msgs)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		m.logger.Warnf("assistant %s failed, trying next: %v", a.Name(), err)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no assistants configured")
	}
	return "", fmt.Errorf("all assistants failed: %w", lastErr)
}
