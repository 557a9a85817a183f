package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/vocall/internal/config"
	"github.com/xpanvictor/vocall/internal/domains/call"
	"github.com/xpanvictor/vocall/internal/domains/dialogue"
	"github.com/xpanvictor/vocall/pkg/Logger"
	"github.com/xpanvictor/vocall/pkg/assistant"
	"github.com/xpanvictor/vocall/pkg/io/stt"
	"github.com/xpanvictor/vocall/pkg/io/tts"
	"github.com/xpanvictor/vocall/pkg/telephony"
)

// Setting keys operators can edit without a deploy.
const (
	SettingFAQ   = "faq"
	SettingPitch = "pitch"
)

const synthTimeout = 12 * time.Second

// Recognizer is the slice of stt.Recognizer the session needs.
type Recognizer interface {
	Recognize(ctx context.Context, mulaw []byte) (*stt.Transcription, error)
}

// Session owns one phone call from the transport's start event to the
// socket closing. The WebSocket read goroutine feeds events in; a
// single pipeline goroutine processes turns strictly in order, so
// per-call state is never touched concurrently: the segmenter belongs
// to the read side, the dialogue engine to the pipeline.
type Session struct {
	cfg    *config.Settings
	logger *Logger.Logger

	store      call.Store
	recognizer Recognizer
	tts        tts.Provider
	llm        assistant.Assistant
	sender     telephony.Sender
	closeFn    func()

	player    *Player
	segmenter *Segmenter
	recorder  *Recorder
	engine    *dialogue.Engine

	callID    uuid.UUID
	callSid   string
	streamSid string
	phone     string
	persona   string
	greeting  string

	turns      chan turn
	pipelineWG sync.WaitGroup
	cancel     context.CancelFunc

	mu          sync.Mutex
	hangupMark  string
	lastOutcome call.Outcome
	started     bool
	tornDown    bool

	// read-goroutine state
	bargeStreak int
	wasSpeaking bool
}

// New builds a session for one freshly upgraded connection. closeFn
// closes the underlying socket; the session calls it exactly once, and
// only after the final playback mark was acknowledged.
func New(
	cfg *config.Settings,
	logger *Logger.Logger,
	store call.Store,
	recognizer Recognizer,
	ttsProvider tts.Provider,
	llm assistant.Assistant,
	sender telephony.Sender,
	closeFn func(),
) *Session {
	return &Session{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		recognizer: recognizer,
		tts:        ttsProvider,
		llm:        llm,
		sender:     sender,
		closeFn:    closeFn,
		player:     NewPlayer(sender, cfg.Audio, logger),
		segmenter:  NewSegmenter(cfg.Audio),
		turns:      make(chan turn, 4),
	}
}

// turn is one unit of pipeline work: inbound audio to transcribe and
// answer, or a scripted line to speak as-is.
type turn struct {
	utterance []byte
	say       string
}

// HandleStart recovers call context from the start event, persists the
// greeting as the first assistant message exactly once, and speaks it.
func (s *Session) HandleStart(ctx context.Context, start *telephony.StartPayload, streamSid string) error {
	if s.started {
		return fmt.Errorf("duplicate start event")
	}
	s.started = true
	s.callSid = start.CallSid
	s.streamSid = streamSid
	s.phone = start.CustomParameters["phone"]
	s.persona = start.CustomParameters["persona"]
	s.greeting = start.CustomParameters["greeting"]
	if s.persona == "" {
		s.persona = "neutral"
	}

	rec, err := s.store.CreateOrGetCall(ctx, s.callSid, s.phone)
	if err != nil {
		return fmt.Errorf("call store: %w", err)
	}
	s.callID = rec.ID

	faqCorpus, err := s.store.GetSetting(ctx, SettingFAQ)
	if err != nil {
		s.logger.Warnf("faq setting unavailable: %v", err)
	}
	pitch, err := s.store.GetSetting(ctx, SettingPitch)
	if err != nil {
		s.logger.Warnf("pitch setting unavailable: %v", err)
	}
	s.engine = dialogue.NewEngine(
		s.llm, dialogue.ParseFAQ(faqCorpus), pitch, s.persona,
		s.cfg.Flow, s.cfg.LLMTimeout, s.logger,
	)

	if s.cfg.Recording.Enabled {
		name := fmt.Sprintf("%s-%d.wav", s.callSid, time.Now().Unix())
		rec, err := NewRecorder(filepath.Join(s.cfg.Recording.Dir, name), s.cfg.Recording, s.logger)
		if err != nil {
			s.logger.Warnf("recorder unavailable, continuing without: %v", err)
		} else {
			s.recorder = rec
			s.player.SetTap(rec.PushOutbound)
		}
	}

	pipeCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.pipelineWG.Add(1)
	go s.pipeline(pipeCtx)

	msgs, err := s.store.GetMessages(ctx, s.callID)
	if err != nil {
		return fmt.Errorf("call store: %w", err)
	}
	if len(msgs) == 0 && s.greeting != "" {
		if err := s.store.AddMessage(ctx, s.callID, assistant.ASSISTANT, s.greeting); err != nil {
			s.logger.Warnf("persist greeting: %v", err)
		}
		// Speak from the pipeline goroutine, not here: this runs on the
		// transport read loop, which must keep consuming events so the
		// callee can barge in or opt out over the greeting.
		s.turns <- turn{say: s.greeting}
	}

	s.logger.Infof("session started call=%s stream=%s phone=%s", s.callSid, s.streamSid, s.phone)
	return nil
}

// HandleMedia consumes one inbound media event. While the agent is
// speaking, frames only feed the barge-in detector; otherwise they run
// through the segmenter, and a finalized utterance queues behind
// whatever the pipeline is already processing.
func (s *Session) HandleMedia(media *telephony.MediaPayload) {
	frame, err := base64.StdEncoding.DecodeString(media.Payload)
	if err != nil || len(frame) == 0 {
		return
	}
	if s.recorder != nil {
		s.recorder.PushInbound(frame)
	}

	if s.player.Speaking() {
		s.wasSpeaking = true
		s.detectBargeIn(frame)
		return
	}
	if s.wasSpeaking {
		// Playback just ended; recalibrate before trusting any speech.
		// The segmenter belongs to this goroutine, so the restart happens
		// here and not on the pipeline side when the job resolves.
		s.wasSpeaking = false
		s.segmenter.Restart()
	}

	if utterance, ok := s.segmenter.Push(frame); ok {
		select {
		case s.turns <- turn{utterance: utterance}:
		default:
			s.logger.Warnf("turn queue full, dropping %d bytes", len(utterance))
		}
	}
}

// HandleMark receives the transport's render acknowledgments. The only
// one the session cares about is the hangup mark: the final line has
// provably been heard, so the line may drop now.
func (s *Session) HandleMark(name string) {
	s.mu.Lock()
	isHangup := s.hangupMark != "" && name == s.hangupMark
	s.mu.Unlock()
	if isHangup {
		s.logger.Infof("final mark %s acknowledged, closing call %s", name, s.callSid)
		s.closeFn()
	}
}

// HandleStop reacts to the transport announcing the stream is over.
func (s *Session) HandleStop() {
	s.logger.Infof("stream stopped for call %s", s.callSid)
	s.closeFn()
}

// Teardown releases everything. Called once by the transport handler
// after the socket is gone; must never panic or block on the dead
// connection.
func (s *Session) Teardown(ctx context.Context) {
	s.mu.Lock()
	if s.tornDown {
		s.mu.Unlock()
		return
	}
	s.tornDown = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.player.Stop()
	close(s.turns)
	s.pipelineWG.Wait()

	recordingPath := ""
	if s.recorder != nil {
		s.recorder.Close()
		recordingPath = s.recorder.Path()
	}

	if !s.started {
		return
	}

	outcome := s.currentOutcome()
	if s.engine != nil && !s.engine.OutcomeRecorded() {
		// Conservative disposition for calls that dropped mid-flow.
		if o := s.engine.Abort(); o != "" {
			outcome = o
			if err := s.store.UpsertLead(ctx, s.phone, o); err != nil {
				s.logger.Warnf("persist abort outcome: %v", err)
			}
		}
	}
	if err := s.store.FinishCall(ctx, s.callID, outcome, recordingPath); err != nil {
		s.logger.Warnf("finish call: %v", err)
	}
	s.logger.Infof("session closed call=%s outcome=%s", s.callSid, outcome)
}

// pipeline is the single consumer of turns; later turns wait here,
// never processed concurrently with the current one. Scripted lines
// like the greeting run through the same queue so playback is always
// serialized.
func (s *Session) pipeline(ctx context.Context) {
	defer s.pipelineWG.Done()
	for t := range s.turns {
		if ctx.Err() != nil {
			return
		}
		if t.say != "" {
			s.speak(ctx, t.say, false)
			continue
		}
		s.processUtterance(ctx, t.utterance)
	}
}

func (s *Session) processUtterance(ctx context.Context, utterance []byte) {
	decision := s.decide(ctx, utterance)

	if decision.Outcome != "" {
		s.mu.Lock()
		s.lastOutcome = decision.Outcome
		s.mu.Unlock()
		if err := s.store.UpsertLead(ctx, s.phone, decision.Outcome); err != nil {
			s.logger.Warnf("persist lead outcome: %v", err)
		}
	}
	if decision.Reply == "" {
		return
	}
	if err := s.store.AddMessage(ctx, s.callID, assistant.ASSISTANT, decision.Reply); err != nil {
		s.logger.Warnf("persist reply: %v", err)
	}
	s.speak(ctx, decision.Reply, decision.EndCall)
}

func (s *Session) decide(ctx context.Context, utterance []byte) dialogue.Decision {
	trans, err := s.recognizer.Recognize(ctx, utterance)
	if err != nil || trans.Text == "" {
		if err != nil {
			s.logger.Warnf("transcription failed: %v", err)
		}
		return s.engine.Unclear(ctx)
	}

	if err := s.store.AddMessage(ctx, s.callID, assistant.USER, trans.Text); err != nil {
		s.logger.Warnf("persist user message: %v", err)
	}
	history := s.history(ctx)
	return s.engine.Decide(ctx, trans.Text, history)
}

func (s *Session) history(ctx context.Context) []assistant.Message {
	msgs, err := s.store.GetMessages(ctx, s.callID)
	if err != nil {
		s.logger.Warnf("fetch history: %v", err)
		return nil
	}
	out := make([]assistant.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, assistant.Message{
			Content:   m.Text,
			CreatedAt: m.CreatedAt,
			MsgRole:   m.MsgRole,
		})
	}
	return out
}

// speak synthesizes and plays one line, blocking the pipeline until
// playback resolves so the next queued utterance starts from silence.
// For a final line the hangup mark is armed before playback so the ack
// cannot race past us.
func (s *Session) speak(ctx context.Context, text string, final bool) {
	synthCtx, cancel := context.WithTimeout(ctx, synthTimeout)
	defer cancel()

	result, err := s.tts.Synthesize(synthCtx, text)
	if err != nil {
		s.logger.Errorf("synthesis failed for %q: %v", text, err)
		if final {
			// Nothing to play; close without the mark handshake.
			s.closeFn()
		}
		return
	}

	job := s.player.PlayBuffer(result.MuLaw, "say")
	if final {
		s.mu.Lock()
		s.hangupMark = job.Mark
		s.mu.Unlock()
	}

	select {
	case <-job.Done():
	case <-ctx.Done():
	}
}

func (s *Session) detectBargeIn(frame []byte) {
	if !s.cfg.Audio.BargeInEnabled {
		return
	}
	if s.player.SpeakingFor() < s.cfg.Audio.BargeInGrace {
		return
	}
	if !s.segmenter.VoicedForBargeIn(frame) {
		s.bargeStreak = 0
		return
	}
	s.bargeStreak++
	if s.bargeStreak < s.cfg.Audio.BargeInFrames {
		return
	}
	s.bargeStreak = 0
	s.logger.Infof("barge-in detected on call %s", s.callSid)
	// The next inbound frame finds playback over and recalibrates the
	// segmenter before listening resumes.
	s.player.Stop()
}

func (s *Session) currentOutcome() call.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOutcome
}
