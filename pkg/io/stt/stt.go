package stt

import (
	"context"
	"time"
)

// Transcription is the result of one utterance transcription.
type Transcription struct {
	Text        string
	Language    string
	Model       string
	GeneratedAt time.Time
}

// Transcriber turns one mono PCM16 WAV clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte, model string) (*Transcription, error)
}
