package session

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/smallnest/ringbuffer"
	"github.com/xpanvictor/vocall/internal/config"
	"github.com/xpanvictor/vocall/pkg/Logger"
	"github.com/xpanvictor/vocall/pkg/audio"
	"github.com/xpanvictor/vocall/pkg/telephony"
)

// JobOutcome is how a playback job resolved.
type JobOutcome int

const (
	// JobCompleted means every frame was sent and the completion mark
	// went out.
	JobCompleted JobOutcome = iota
	// JobStopped means the job was cancelled by barge-in or superseded
	// by a newer job before finishing.
	JobStopped
)

// Job is one playback run. The mark name is what the transport echoes
// back once the far end rendered the final frame; callers that intend
// to hang up must wait for that ack.
type Job struct {
	ID        uint64
	Mark      string
	StartedAt time.Time

	done chan JobOutcome
	once sync.Once
}

func (j *Job) Done() <-chan JobOutcome { return j.done }

func (j *Job) resolve(outcome JobOutcome) {
	j.once.Do(func() { j.done <- outcome })
}

// sixty seconds of buffered audio; a blocking producer past this point
// means the consumer died anyway.
const streamBufferBytes = 60 * 50 * FrameBytes

// Player paces outbound audio at the transport's fixed frame cadence.
// Starting a new job supersedes the previous one: the job id is bumped
// and the old job's ticker loop notices and self-aborts. At most one
// job is ever actively sending.
type Player struct {
	sender telephony.Sender
	cfg    config.AudioTuning
	logger *Logger.Logger

	jobID     atomic.Uint64
	speaking  atomic.Bool
	startedAt atomic.Int64

	// tap sees every outbound frame, for the call recorder.
	tap func(frame []byte)
}

func NewPlayer(sender telephony.Sender, cfg config.AudioTuning, logger *Logger.Logger) *Player {
	return &Player{sender: sender, cfg: cfg, logger: logger}
}

// SetTap installs a per-frame observer. Must be set before any Play.
func (p *Player) SetTap(tap func(frame []byte)) { p.tap = tap }

func (p *Player) Speaking() bool { return p.speaking.Load() }

// SpeakingFor is the current job's age, used to hold off the barge-in
// detector during the grace period right after playback starts.
func (p *Player) SpeakingFor() time.Duration {
	if !p.speaking.Load() {
		return 0
	}
	return time.Since(time.Unix(0, p.startedAt.Load()))
}

// PlayBuffer plays a complete μ-law clip.
func (p *Player) PlayBuffer(mulaw []byte, label string) *Job {
	return p.Play(bytes.NewReader(mulaw), label)
}

// Play starts streaming audio from src. It returns immediately; the
// returned job resolves when the final frame and mark have been sent,
// or when the job is stopped.
func (p *Player) Play(src io.Reader, label string) *Job {
	id := p.jobID.Add(1)
	job := &Job{
		ID:        id,
		Mark:      label + "-" + uuid.NewString(),
		StartedAt: time.Now(),
		done:      make(chan JobOutcome, 1),
	}
	p.speaking.Store(true)
	p.startedAt.Store(job.StartedAt.UnixNano())

	rb := ringbuffer.New(streamBufferBytes)
	var srcDone atomic.Bool

	go p.produce(job, src, rb, &srcDone)
	go p.consume(job, rb, &srcDone)

	return job
}

// Stop cancels the active job for barge-in: the ticker loop aborts via
// the bumped id, and the transport is told to discard whatever audio it
// has buffered on its side.
func (p *Player) Stop() {
	p.jobID.Add(1)
	p.speaking.Store(false)
	if err := p.sender.SendClear(); err != nil {
		p.logger.Warnf("clear failed: %v", err)
	}
}

func (p *Player) produce(job *Job, src io.Reader, rb *ringbuffer.RingBuffer, srcDone *atomic.Bool) {
	defer srcDone.Store(true)
	chunk := make([]byte, 4*FrameBytes)
	for {
		if p.jobID.Load() != job.ID {
			return
		}
		n, err := src.Read(chunk)
		if n > 0 {
			rest := chunk[:n]
			for len(rest) > 0 {
				if p.jobID.Load() != job.ID {
					return
				}
				if rb.Free() == 0 {
					time.Sleep(FrameDuration)
					continue
				}
				w := len(rest)
				if free := rb.Free(); w > free {
					w = free
				}
				if _, werr := rb.Write(rest[:w]); werr != nil {
					p.logger.Warnf("playback buffer write: %v", werr)
					return
				}
				rest = rest[w:]
			}
		}
		if err != nil {
			if err != io.EOF {
				p.logger.Warnf("playback source read: %v", err)
			}
			return
		}
	}
}

func (p *Player) consume(job *Job, rb *ringbuffer.RingBuffer, srcDone *atomic.Bool) {
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	prebuffer := p.cfg.PrebufferFrames * FrameBytes
	started := false
	waitStart := time.Now()
	lastData := time.Now()
	frame := make([]byte, FrameBytes)

	for range ticker.C {
		if p.jobID.Load() != job.ID {
			job.resolve(JobStopped)
			return
		}

		if !started {
			// Hold until enough audio accumulated to survive network
			// jitter, the source finished early, or it stalled. A
			// source that stalled with nothing buffered ends cleanly.
			switch {
			case rb.Length() >= prebuffer || srcDone.Load():
				started = true
			case time.Since(waitStart) > p.cfg.StreamStall:
				if rb.Length() == 0 {
					p.logger.Warnf("playback source stalled with no audio, ending job %d", job.ID)
					p.finish(job)
					return
				}
				started = true
			default:
				continue
			}
		}

		if rb.Length() >= FrameBytes {
			if _, err := rb.Read(frame); err != nil {
				p.logger.Warnf("playback buffer read: %v", err)
				p.finish(job)
				return
			}
			lastData = time.Now()
			p.send(frame)
			continue
		}

		if srcDone.Load() {
			// Drain and pad the final partial frame to exact size.
			if n := rb.Length(); n > 0 {
				tail := make([]byte, FrameBytes)
				for i := range tail {
					tail[i] = audio.MuLawSilence
				}
				if _, err := rb.Read(tail[:n]); err == nil {
					p.send(tail)
				}
			}
			p.finish(job)
			return
		}

		if time.Since(lastData) > p.cfg.StreamStall {
			p.logger.Warnf("playback source stalled mid-stream, ending job %d", job.ID)
			p.finish(job)
			return
		}
	}
}

func (p *Player) send(frame []byte) {
	if p.tap != nil {
		p.tap(frame)
	}
	if err := p.sender.SendMedia(frame); err != nil {
		p.logger.Warnf("send media: %v", err)
	}
}

// finish emits the completion mark and resolves the job. The caller of
// Play still must wait for the transport's mark ack before hanging up.
func (p *Player) finish(job *Job) {
	if err := p.sender.SendMark(job.Mark); err != nil {
		p.logger.Warnf("send mark: %v", err)
	}
	if p.jobID.Load() == job.ID {
		p.speaking.Store(false)
	}
	job.resolve(JobCompleted)
}
