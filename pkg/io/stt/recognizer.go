package stt

import (
	"context"
	"strings"
	"time"

	"github.com/xpanvictor/vocall/pkg/Logger"
	"github.com/xpanvictor/vocall/pkg/audio"
)

const telephonyRate = 8000

// Recognizer adapts raw telephone audio for a Transcriber and applies a
// second-opinion retry when the first result looks like a hallucination.
// Telephone captures are upsampled to 16k before upload; hosted models
// transcribe narrowband speech noticeably better above 8k.
type Recognizer struct {
	transcriber   Transcriber
	model         string
	fallbackModel string
	prompt        string
	logger        *Logger.Logger
}

func NewRecognizer(t Transcriber, model, fallbackModel, prompt string, logger *Logger.Logger) *Recognizer {
	return &Recognizer{
		transcriber:   t,
		model:         model,
		fallbackModel: fallbackModel,
		prompt:        prompt,
		logger:        logger,
	}
}

// Recognize transcribes one μ-law 8kHz utterance. On a suspicious result
// it retries once with the fallback model and keeps the retry only when
// it looks clean, otherwise the first answer stands.
func (r *Recognizer) Recognize(ctx context.Context, mulaw []byte) (*Transcription, error) {
	duration := time.Duration(len(mulaw)) * time.Second / telephonyRate
	wav := r.toWav(mulaw)

	primary, err := r.transcriber.Transcribe(ctx, wav, r.model)
	if err != nil {
		if r.fallbackModel == "" || r.fallbackModel == r.model {
			return nil, err
		}
		r.logger.Warnf("primary transcription failed, retrying with %s: %v", r.fallbackModel, err)
		return r.transcriber.Transcribe(ctx, wav, r.fallbackModel)
	}

	if !r.suspicious(primary.Text, duration) || r.fallbackModel == "" || r.fallbackModel == r.model {
		return primary, nil
	}

	r.logger.Infof("suspicious transcription %q for %s of audio, retrying with %s",
		primary.Text, duration, r.fallbackModel)

	second, err := r.transcriber.Transcribe(ctx, wav, r.fallbackModel)
	if err != nil {
		return primary, nil
	}
	if r.suspicious(second.Text, duration) {
		return primary, nil
	}
	return second, nil
}

// suspicious flags results that are empty, echo the vocabulary prompt
// back verbatim, or are far too short for the captured audio.
func (r *Recognizer) suspicious(text string, duration time.Duration) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	if r.prompt != "" && strings.EqualFold(trimmed, strings.TrimSpace(r.prompt)) {
		return true
	}
	words := len(strings.Fields(trimmed))
	if duration >= 3*time.Second && words < 2 {
		return true
	}
	return false
}

func (r *Recognizer) toWav(mulaw []byte) []byte {
	pcm := audio.MuLawToPCM16(mulaw)
	pcm = audio.UpsampleLinear2x(pcm)
	data := audio.PCM16ToBytes(pcm)
	wav := audio.WavHeader(1, telephonyRate*2, 16, len(data))
	return append(wav, data...)
}
