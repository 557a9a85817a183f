package tts

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/xpanvictor/vocall/pkg/Logger"
	"github.com/xpanvictor/vocall/pkg/audio"
)

// OpenAI synthesizes through the hosted speech API. The API emits wideband
// WAV, so the clip is unwrapped and downsampled to the telephone rate here.
type OpenAI struct {
	client openai.Client
	model  string
	voice  string
	logger *Logger.Logger
}

func NewOpenAI(apiKey, model, voice string, logger *Logger.Logger) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
		),
		model:  model,
		voice:  voice,
		logger: logger,
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Identity() string {
	return fmt.Sprintf("openai|%s|%s|wav", o.voice, o.model)
}

func (o *OpenAI) Synthesize(ctx context.Context, text string) (*Result, error) {
	start := time.Now()

	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          o.model,
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(o.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return nil, fmt.Errorf("openai tts: request failed: %w", err)
	}
	defer resp.Body.Close()

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read response: %w", err)
	}

	pcmBytes, info, err := audio.StripWav(wav)
	if err != nil {
		return nil, fmt.Errorf("openai tts: bad wav: %w", err)
	}
	if info.Channels != 1 || info.BitDepth != 16 {
		return nil, fmt.Errorf("openai tts: unexpected format %d ch %d bit", info.Channels, info.BitDepth)
	}

	pcm := audio.BytesToPCM16(pcmBytes)
	if info.SampleRate != telephonyRate {
		pcm = audio.ResampleLinear(pcm, info.SampleRate, telephonyRate)
	}
	mulaw := audio.PCM16ToMuLaw(pcm)

	latency := time.Since(start).Milliseconds()
	o.logger.Debugf("openai tts synthesized %d bytes (%dHz source) in %dms", len(mulaw), info.SampleRate, latency)

	return &Result{
		MuLaw:     mulaw,
		Identity:  o.Identity(),
		Duration:  durationOf(mulaw),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

func (o *OpenAI) Close() error { return nil }
