package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xpanvictor/vocall/internal/config"
	"github.com/xpanvictor/vocall/pkg/Logger"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io/v1"

// ElevenLabs synthesizes through the hosted voice-cloning API. It asks for
// ulaw_8000 output so no resampling happens on our side.
type ElevenLabs struct {
	cfg    config.ElevenLabsConfig
	client *http.Client
	logger *Logger.Logger
}

func NewElevenLabs(cfg config.ElevenLabsConfig, logger *Logger.Logger) (*ElevenLabs, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs API key is not configured")
	}
	if cfg.VoiceID == "" {
		return nil, fmt.Errorf("elevenlabs voice id is not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = elevenLabsBaseURL
	}
	return &ElevenLabs{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}, nil
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

func (e *ElevenLabs) Identity() string {
	return fmt.Sprintf("elevenlabs|%s|%s|ulaw_8000", e.cfg.VoiceID, e.cfg.ModelID)
}

func (e *ElevenLabs) Synthesize(ctx context.Context, text string) (*Result, error) {
	start := time.Now()

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=ulaw_8000", e.cfg.BaseURL, e.cfg.VoiceID)

	payload := map[string]any{
		"text":     text,
		"model_id": e.cfg.ModelID,
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/basic")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("elevenlabs: status %d: %s", resp.StatusCode, string(msg))
	}

	mulaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read response: %w", err)
	}
	if len(mulaw) == 0 {
		return nil, fmt.Errorf("elevenlabs: empty audio response")
	}

	latency := time.Since(start).Milliseconds()
	e.logger.Debugf("elevenlabs synthesized %d bytes for %d chars in %dms", len(mulaw), len(text), latency)

	return &Result{
		MuLaw:     mulaw,
		Identity:  e.Identity(),
		Duration:  durationOf(mulaw),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

func (e *ElevenLabs) Close() error { return nil }
