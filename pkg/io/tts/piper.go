package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/xpanvictor/vocall/internal/config"
	"github.com/xpanvictor/vocall/pkg/Logger"
	"github.com/xpanvictor/vocall/pkg/audio"
)

// Piper talks to a local wyoming-piper HTTP server, the self-hosted last
// resort when the hosted providers are down.
type Piper struct {
	cfg    config.PiperConfig
	client *http.Client
	logger *Logger.Logger
}

func NewPiper(cfg config.PiperConfig, logger *Logger.Logger) *Piper {
	return &Piper{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

func (p *Piper) Name() string { return "piper" }

func (p *Piper) Identity() string {
	return fmt.Sprintf("piper|%s||wav", p.cfg.Voice)
}

func (p *Piper) Synthesize(ctx context.Context, text string) (*Result, error) {
	if text == "" {
		return nil, fmt.Errorf("piper: empty text")
	}
	start := time.Now()

	// rhasspy/wyoming-piper HTTP: GET /api/text-to-speech?text=...&voice=...
	u, err := url.Parse(p.cfg.BaseURL + "/api/text-to-speech")
	if err != nil {
		return nil, fmt.Errorf("piper: bad base url: %w", err)
	}
	q := u.Query()
	q.Set("text", text)
	if p.cfg.Voice != "" {
		q.Set("voice", p.cfg.Voice)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("piper: create request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("piper: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("piper: status %d: %s", resp.StatusCode, string(msg))
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("piper: read response: %w", err)
	}

	pcmBytes, info, err := audio.StripWav(wav)
	if err != nil {
		return nil, fmt.Errorf("piper: bad wav: %w", err)
	}
	pcm := audio.BytesToPCM16(pcmBytes)
	if info.SampleRate != telephonyRate {
		pcm = audio.ResampleLinear(pcm, info.SampleRate, telephonyRate)
	}
	mulaw := audio.PCM16ToMuLaw(pcm)

	latency := time.Since(start).Milliseconds()
	p.logger.Debugf("piper synthesized %d bytes (%dHz source) in %dms", len(mulaw), info.SampleRate, latency)

	return &Result{
		MuLaw:     mulaw,
		Identity:  p.Identity(),
		Duration:  durationOf(mulaw),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

func (p *Piper) Close() error { return nil }
