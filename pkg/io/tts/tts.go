// Package tts synthesizes speech for the telephone leg. Every provider
// returns μ-law 8kHz mono so the playback path never needs to know which
// backend produced a clip.
package tts

import (
	"context"
	"fmt"
	"time"
)

const telephonyRate = 8000

// Provider converts text into telephone-ready audio.
type Provider interface {
	// Synthesize returns a complete μ-law 8kHz clip for the text.
	Synthesize(ctx context.Context, text string) (*Result, error)

	// Name identifies the backend, used for logging.
	Name() string

	// Identity returns the provider|voice|model|settings string that,
	// together with the text, addresses a synthesis result. Two
	// providers with equal identity produce interchangeable audio.
	Identity() string

	Close() error
}

// Result is one synthesized clip. Identity records which voice actually
// produced it, which may differ from the identity a chain advertises.
type Result struct {
	MuLaw     []byte
	Identity  string
	Duration  time.Duration
	CharCount int
	LatencyMs int64
}

func durationOf(mulaw []byte) time.Duration {
	return time.Duration(len(mulaw)) * time.Second / telephonyRate
}

// ChainError aggregates failures from every provider in a chain.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "tts chain: no errors recorded"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("tts chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("tts chain: all %d providers failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

func (e *ChainError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}
