package session

import (
	"math"
	"time"

	"github.com/xpanvictor/vocall/internal/config"
	"github.com/xpanvictor/vocall/pkg/audio"
)

// FrameDuration is the transport's fixed media cadence.
const FrameDuration = 20 * time.Millisecond

// FrameBytes is one 20ms μ-law frame at 8kHz.
const FrameBytes = 160

// Segmenter turns a stream of inbound frames into finalized utterances.
// It keeps an adaptive noise floor so a noisy line does not read as
// constant speech, and suppresses voiced classification for a short
// calibration window after listening is re-enabled so post-playback
// line noise settles before any speech is trusted.
//
// Owned by a single session goroutine, no locking.
type Segmenter struct {
	cfg config.AudioTuning

	noiseFloor  float64
	calibrating int

	active        bool
	buf           []byte
	voicedFrames  int
	silenceFrames int
	totalFrames   int
}

func NewSegmenter(cfg config.AudioTuning) *Segmenter {
	s := &Segmenter{cfg: cfg, noiseFloor: -1}
	s.Restart()
	return s
}

// Restart re-enables listening after playback, opening a fresh
// calibration window. Any half-built utterance is dropped.
func (s *Segmenter) Restart() {
	s.calibrating = s.cfg.CalibrationFrames
	s.clearUtterance()
}

// NoiseFloor exposes the current floor for the barge-in detector.
func (s *Segmenter) NoiseFloor() float64 {
	if s.noiseFloor < 0 {
		return s.cfg.MinRMSFloor
	}
	return s.noiseFloor
}

// Threshold is the current voiced/silence boundary.
func (s *Segmenter) Threshold() float64 {
	return math.Max(s.cfg.MinRMSFloor, s.NoiseFloor()*s.cfg.NoiseMultiplier+s.cfg.NoiseMargin)
}

// Push consumes one 20ms μ-law frame. When the frame completes an
// utterance, the concatenated μ-law audio is returned. Finalization
// happens at most once per utterance; the segmenter is immediately
// ready for the next one.
func (s *Segmenter) Push(frame []byte) ([]byte, bool) {
	pcm := audio.MuLawToPCM16(frame)
	rms := rmsEnergy(pcm)

	voiced := rms >= s.Threshold()
	if s.calibrating > 0 {
		s.calibrating--
		voiced = false
	}

	if !voiced {
		s.adaptNoiseFloor(rms)
	}

	if !s.active {
		if !voiced {
			return nil, false
		}
		s.active = true
		s.buf = append(s.buf[:0], frame...)
		s.voicedFrames = 1
		s.silenceFrames = 0
		s.totalFrames = 1
		return nil, false
	}

	if voiced {
		s.voicedFrames++
		s.silenceFrames = 0
		s.buf = append(s.buf, frame...)
	} else {
		s.silenceFrames++
		// Trailing silence is kept up to a cap so the clip keeps its
		// natural ending without recording the whole pause.
		if s.frameSpan(s.silenceFrames) <= s.cfg.MaxTrailingSilence {
			s.buf = append(s.buf, frame...)
		}
	}
	s.totalFrames++

	if s.shouldFinalize() {
		return s.finalize()
	}
	return nil, false
}

// VoicedForBargeIn reports whether a frame clears the barge-in bar: a stricter
// threshold than normal VAD, since line echo during playback sits well
// above the idle noise floor.
func (s *Segmenter) VoicedForBargeIn(frame []byte) bool {
	pcm := audio.MuLawToPCM16(frame)
	rms := rmsEnergy(pcm)
	bar := math.Max(s.cfg.MinRMSFloor, s.NoiseFloor()*s.cfg.BargeInRMSFactor+s.cfg.NoiseMargin)
	return rms >= bar
}

func (s *Segmenter) shouldFinalize() bool {
	if s.frameSpan(s.totalFrames) >= s.cfg.MaxUtterance {
		return true
	}
	silence := s.frameSpan(s.silenceFrames)
	if silence > s.cfg.SilenceHangover {
		return true
	}
	// Fast path: a short burst like "yes" should not wait out the full
	// hangover before the agent responds.
	if s.frameSpan(s.totalFrames) < s.cfg.FastMaxDuration &&
		s.voicedFrames <= s.cfg.FastMaxVoicedFrames &&
		silence > s.cfg.FastSilenceHangover {
		return true
	}
	return false
}

func (s *Segmenter) finalize() ([]byte, bool) {
	voicedSpan := s.frameSpan(s.voicedFrames)
	utterance := make([]byte, len(s.buf))
	copy(utterance, s.buf)
	s.clearUtterance()

	if voicedSpan < s.cfg.MinUtterance {
		return nil, false
	}
	return utterance, true
}

func (s *Segmenter) clearUtterance() {
	s.active = false
	s.buf = s.buf[:0]
	s.voicedFrames = 0
	s.silenceFrames = 0
	s.totalFrames = 0
}

func (s *Segmenter) adaptNoiseFloor(rms float64) {
	if s.noiseFloor < 0 {
		s.noiseFloor = rms
		return
	}
	a := s.cfg.NoiseAlpha
	s.noiseFloor = s.noiseFloor*(1-a) + rms*a
}

func (s *Segmenter) frameSpan(frames int) time.Duration {
	return time.Duration(frames) * FrameDuration
}

func rmsEnergy(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(pcm)))
}
