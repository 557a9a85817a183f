package tts

import (
	"context"
	"errors"
	"testing"

	"github.com/xpanvictor/vocall/pkg/Logger"
)

func TestChainFallsThrough(t *testing.T) {
	broken := &countingProvider{identity: "a|v|m|ulaw_8000", fail: true}
	working := &countingProvider{identity: "b|v|m|ulaw_8000"}

	chain, err := NewChain(Logger.New(false), broken, working)
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}

	result, err := chain.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("chain synth: %v", err)
	}
	if result.Identity != working.Identity() {
		t.Errorf("result identity %q, want fallback %q", result.Identity, working.Identity())
	}
	if chain.Identity() != broken.Identity() {
		t.Errorf("chain identity must stay the head's, got %q", chain.Identity())
	}
}

func TestChainAggregatesErrors(t *testing.T) {
	a := &countingProvider{identity: "a", fail: true}
	b := &countingProvider{identity: "b", fail: true}

	chain, _ := NewChain(Logger.New(false), a, b)
	_, err := chain.Synthesize(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error when all providers fail")
	}
	var ce *ChainError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ChainError, got %T", err)
	}
	if len(ce.Errors) != 2 {
		t.Errorf("expected 2 aggregated errors, got %d", len(ce.Errors))
	}
}

func TestChainRequiresProviders(t *testing.T) {
	if _, err := NewChain(Logger.New(false)); err == nil {
		t.Fatal("expected error for empty chain")
	}
}

func TestToneAlwaysProducesAudio(t *testing.T) {
	tone := NewTone()
	result, err := tone.Synthesize(context.Background(), "anything")
	if err != nil {
		t.Fatalf("tone synth: %v", err)
	}
	if len(result.MuLaw) == 0 {
		t.Fatal("tone produced no audio")
	}
	if result.Duration <= 0 {
		t.Error("tone duration must be positive")
	}
}
