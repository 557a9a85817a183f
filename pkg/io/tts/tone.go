package tts

import (
	"context"
	"math"

	"github.com/xpanvictor/vocall/pkg/audio"
)

// Tone is the terminal chain member. It cannot fail and emits a short
// attention tone, so a caller is never left with dead air when every
// real synthesizer is down.
type Tone struct {
	freq     float64
	duration float64 // seconds
}

func NewTone() *Tone {
	return &Tone{freq: 440, duration: 0.4}
}

func (t *Tone) Name() string     { return "tone" }
func (t *Tone) Identity() string { return "tone|440|0.4|ulaw_8000" }

func (t *Tone) Synthesize(_ context.Context, text string) (*Result, error) {
	n := int(t.duration * telephonyRate)
	pcm := make([]int16, n)
	for i := range pcm {
		// fade in/out over 20ms to avoid clicks
		env := 1.0
		ramp := telephonyRate / 50
		if i < ramp {
			env = float64(i) / float64(ramp)
		} else if n-i < ramp {
			env = float64(n-i) / float64(ramp)
		}
		pcm[i] = int16(6000 * env * math.Sin(2*math.Pi*t.freq*float64(i)/telephonyRate))
	}
	mulaw := audio.PCM16ToMuLaw(pcm)
	return &Result{
		MuLaw:     mulaw,
		Identity:  t.Identity(),
		Duration:  durationOf(mulaw),
		CharCount: len(text),
	}, nil
}

func (t *Tone) Close() error { return nil }
