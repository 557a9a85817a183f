package session

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/xpanvictor/vocall/internal/config"
	"github.com/xpanvictor/vocall/pkg/Logger"
	"github.com/xpanvictor/vocall/pkg/audio"
)

// Recorder mixes both call directions into one stereo WAV file: caller
// on the left channel, agent on the right. It runs its own 20ms tick
// independent of playback and VAD timing, substituting codec silence
// whenever a direction has no frame queued so the channels never drift
// out of alignment.
//
// Recorder failures are logged and swallowed; a broken disk must never
// take the call down with it.
type Recorder struct {
	path   string
	file   *os.File
	w      *bufio.Writer
	logger *Logger.Logger

	inbound  chan []byte
	outbound chan []byte

	maxFrames int
	frames    int
	dataLen   int

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewRecorder(path string, cfg config.RecordingConfig, logger *Logger.Logger) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: create file: %w", err)
	}
	w := bufio.NewWriter(file)
	// Placeholder header; the real sizes go in at finalize.
	if _, err := w.Write(audio.WavHeader(2, 8000, 16, 0)); err != nil {
		file.Close()
		return nil, fmt.Errorf("recorder: write header: %w", err)
	}

	r := &Recorder{
		path:      path,
		file:      file,
		w:         w,
		logger:    logger,
		inbound:   make(chan []byte, 256),
		outbound:  make(chan []byte, 256),
		maxFrames: int(cfg.MaxDuration / FrameDuration),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go r.run()
	return r, nil
}

func (r *Recorder) Path() string { return r.path }

// PushInbound queues a caller frame. Never blocks; a full queue drops
// the frame rather than stalling the media loop.
func (r *Recorder) PushInbound(frame []byte) { r.push(r.inbound, frame) }

// PushOutbound queues an agent frame.
func (r *Recorder) PushOutbound(frame []byte) { r.push(r.outbound, frame) }

func (r *Recorder) push(ch chan []byte, frame []byte) {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	select {
	case ch <- cp:
	case <-r.stop:
	default:
	}
}

// Close finalizes the recording and rewrites the WAV header with the
// real data size. Safe to call more than once.
func (r *Recorder) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)
	defer r.finalize()

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.writeTick()
			if r.maxFrames > 0 && r.frames >= r.maxFrames {
				r.logger.Warnf("recording %s hit duration cap, finalizing", r.path)
				return
			}
		}
	}
}

func (r *Recorder) writeTick() {
	left := r.take(r.inbound)
	right := r.take(r.outbound)

	leftPCM := audio.MuLawToPCM16(left)
	rightPCM := audio.MuLawToPCM16(right)

	stereo := make([]byte, 0, 4*FrameBytes)
	for i := 0; i < FrameBytes; i++ {
		l := leftPCM[i]
		rt := rightPCM[i]
		stereo = append(stereo, byte(l), byte(uint16(l)>>8), byte(rt), byte(uint16(rt)>>8))
	}

	if _, err := r.w.Write(stereo); err != nil {
		r.logger.Warnf("recording %s write failed: %v", r.path, err)
		return
	}
	r.dataLen += len(stereo)
	r.frames++
}

func (r *Recorder) take(ch chan []byte) []byte {
	select {
	case frame := <-ch:
		if len(frame) == FrameBytes {
			return frame
		}
	default:
	}
	silence := make([]byte, FrameBytes)
	for i := range silence {
		silence[i] = audio.MuLawSilence
	}
	return silence
}

func (r *Recorder) finalize() {
	if err := r.w.Flush(); err != nil {
		r.logger.Warnf("recording %s flush failed: %v", r.path, err)
	}
	if _, err := r.file.Seek(0, 0); err == nil {
		if _, err := r.file.Write(audio.WavHeader(2, 8000, 16, r.dataLen)); err != nil {
			r.logger.Warnf("recording %s header rewrite failed: %v", r.path, err)
		}
	} else {
		r.logger.Warnf("recording %s seek failed: %v", r.path, err)
	}
	if err := r.file.Close(); err != nil {
		r.logger.Warnf("recording %s close failed: %v", r.path, err)
	}
	r.logger.Debugf("recording finalized: %s (%d bytes of audio)", r.path, r.dataLen)
}
