package session

import (
	"testing"
	"time"

	"github.com/xpanvictor/vocall/internal/config"
	"github.com/xpanvictor/vocall/pkg/audio"
)

func tuning() config.AudioTuning {
	var s config.Settings
	s.ApplyDefaults()
	return s.Audio
}

// frameAt builds one 20ms μ-law frame whose decoded RMS sits near amp.
func frameAt(amp int16) []byte {
	pcm := make([]int16, FrameBytes)
	for i := range pcm {
		pcm[i] = amp
	}
	return audio.PCM16ToMuLaw(pcm)
}

func TestSegmenterSingleUtterance(t *testing.T) {
	seg := NewSegmenter(tuning())
	silent := frameAt(100)
	voiced := frameAt(300)

	var utterances [][]byte
	var voicedAtFinalize int

	push := func(frame []byte) {
		if u, ok := seg.Push(frame); ok {
			utterances = append(utterances, u)
			voicedAtFinalize = len(u) / FrameBytes
		}
	}

	// Noise floor settles around 100 over the silent lead-in, putting
	// the voiced threshold near 230, which amp 300 clears and 100 does
	// not.
	for i := 0; i < 300; i++ {
		push(silent)
	}
	if len(utterances) != 0 {
		t.Fatalf("silence alone produced %d utterances", len(utterances))
	}

	for i := 0; i < 40; i++ {
		push(voiced)
	}
	for i := 0; i < 60; i++ {
		push(silent)
	}

	if len(utterances) != 1 {
		t.Fatalf("got %d utterances, want exactly 1", len(utterances))
	}

	// The clip spans the voiced frames plus capped trailing silence.
	maxFrames := 40 + int(tuning().SilenceHangover/FrameDuration) + 1
	if voicedAtFinalize < 40 || voicedAtFinalize > maxFrames {
		t.Errorf("utterance spans %d frames, want between 40 and %d", voicedAtFinalize, maxFrames)
	}
}

func TestSegmenterFastPathEndsShortUtteranceEarly(t *testing.T) {
	cfg := tuning()
	seg := NewSegmenter(cfg)
	silent := frameAt(100)
	voiced := frameAt(400)

	for i := 0; i < 100; i++ {
		seg.Push(silent)
	}
	// A short burst, well under the fast-path voiced frame limit.
	for i := 0; i < 12; i++ {
		if _, ok := seg.Push(voiced); ok {
			t.Fatal("utterance finalized while still voiced")
		}
	}

	fastFrames := int(cfg.FastSilenceHangover/FrameDuration) + 1
	normalFrames := int(cfg.SilenceHangover / FrameDuration)

	finalized := -1
	for i := 0; i < normalFrames+10; i++ {
		if _, ok := seg.Push(silent); ok {
			finalized = i + 1
			break
		}
	}
	if finalized < 0 {
		t.Fatal("short utterance never finalized")
	}
	if finalized > fastFrames+1 {
		t.Errorf("finalized after %d silent frames, fast path should fire by %d", finalized, fastFrames+1)
	}
}

func TestSegmenterDiscardsSpuriousBlip(t *testing.T) {
	seg := NewSegmenter(tuning())
	silent := frameAt(100)
	voiced := frameAt(400)

	for i := 0; i < 100; i++ {
		seg.Push(silent)
	}
	seg.Push(voiced) // single-frame blip

	for i := 0; i < 100; i++ {
		if _, ok := seg.Push(silent); ok {
			t.Fatal("a single voiced frame must not produce an utterance")
		}
	}
}

func TestSegmenterForceFinalizesLongUtterance(t *testing.T) {
	cfg := tuning()
	cfg.MaxUtterance = 2 * time.Second
	seg := NewSegmenter(cfg)
	silent := frameAt(100)
	voiced := frameAt(400)

	for i := 0; i < 100; i++ {
		seg.Push(silent)
	}

	got := 0
	for i := 0; i < 300; i++ {
		if _, ok := seg.Push(voiced); ok {
			got++
		}
	}
	if got == 0 {
		t.Fatal("continuous speech never force-finalized")
	}
}

func TestSegmenterCalibrationSuppressesEarlyVoiced(t *testing.T) {
	cfg := tuning()
	seg := NewSegmenter(cfg)
	silent := frameAt(100)
	loud := frameAt(2000)

	for i := 0; i < 100; i++ {
		seg.Push(silent)
	}
	seg.Restart()

	// Loud frames inside the calibration window must not open an
	// utterance.
	for i := 0; i < cfg.CalibrationFrames; i++ {
		seg.Push(loud)
	}
	for i := 0; i < 100; i++ {
		if _, ok := seg.Push(silent); ok {
			t.Fatal("calibration window failed to suppress voiced frames")
		}
	}
}

func TestVoicedForBargeIn(t *testing.T) {
	seg := NewSegmenter(tuning())
	silent := frameAt(100)
	for i := 0; i < 100; i++ {
		seg.Push(silent)
	}

	if seg.VoicedForBargeIn(frameAt(150)) {
		t.Error("mild line noise must not read as barge-in")
	}
	if !seg.VoicedForBargeIn(frameAt(2000)) {
		t.Error("clear speech must read as barge-in")
	}
}
