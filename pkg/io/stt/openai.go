package stt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/xpanvictor/vocall/pkg/Logger"
)

// OpenAIClient transcribes utterances through the hosted transcription API.
type OpenAIClient struct {
	client   openai.Client
	language string
	prompt   string
	logger   *Logger.Logger
}

// NewOpenAIClient builds a transcriber. prompt is a vocabulary hint
// (names, product terms) that biases decoding toward expected words.
func NewOpenAIClient(apiKey, language, prompt string, logger *Logger.Logger) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
		),
		language: language,
		prompt:   prompt,
		logger:   logger,
	}
}

// Transcribe sends one WAV clip and returns the transcription.
func (c *OpenAIClient) Transcribe(ctx context.Context, wav []byte, model string) (*Transcription, error) {
	if len(wav) == 0 {
		return nil, fmt.Errorf("no audio provided")
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
		Model: model,
	}
	if c.language != "" {
		params.Language = openai.String(c.language)
	}
	if c.prompt != "" {
		params.Prompt = openai.String(c.prompt)
	}

	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}

	c.logger.Debugf("transcription (%s): %q", model, resp.Text)

	return &Transcription{
		Text:        resp.Text,
		Language:    c.language,
		Model:       model,
		GeneratedAt: time.Now(),
	}, nil
}
