package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/vocall/internal/config"
	"github.com/xpanvictor/vocall/internal/domains/call"
	"github.com/xpanvictor/vocall/pkg/Logger"
	"github.com/xpanvictor/vocall/pkg/assistant"
	"github.com/xpanvictor/vocall/pkg/io/stt"
	"github.com/xpanvictor/vocall/pkg/io/tts"
	"github.com/xpanvictor/vocall/pkg/telephony"
)

type memStore struct {
	mu       sync.Mutex
	calls    map[string]*call.Call
	msgs     map[uuid.UUID][]call.Message
	leads    map[string]call.Lead
	settings map[string]string
	finished map[uuid.UUID]call.Outcome
}

func newMemStore() *memStore {
	return &memStore{
		calls:    make(map[string]*call.Call),
		msgs:     make(map[uuid.UUID][]call.Message),
		leads:    make(map[string]call.Lead),
		settings: make(map[string]string),
		finished: make(map[uuid.UUID]call.Outcome),
	}
}

func (m *memStore) CreateOrGetCall(_ context.Context, callSid, phone string) (*call.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.calls[callSid]; ok {
		return c, nil
	}
	c := &call.Call{ID: uuid.New(), CallSid: callSid, Phone: phone, StartedAt: time.Now()}
	m.calls[callSid] = c
	return c, nil
}

func (m *memStore) AddMessage(_ context.Context, callID uuid.UUID, role assistant.Role, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs[callID] = append(m.msgs[callID], call.Message{
		ID: uuid.New(), CallID: callID, MsgRole: role, Text: text, CreatedAt: time.Now(),
	})
	return nil
}

func (m *memStore) GetMessages(_ context.Context, callID uuid.UUID) ([]call.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]call.Message, len(m.msgs[callID]))
	copy(out, m.msgs[callID])
	return out, nil
}

func (m *memStore) FinishCall(_ context.Context, callID uuid.UUID, outcome call.Outcome, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[callID] = outcome
	return nil
}

func (m *memStore) ListCalls(context.Context, int) ([]call.Call, error) { return nil, nil }

func (m *memStore) UpsertLead(_ context.Context, phone string, outcome call.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads[phone] = call.Lead{
		Phone: phone, Outcome: outcome, DoNotCall: outcome == call.OutcomeDoNotCall,
	}
	return nil
}

func (m *memStore) IsDoNotCall(_ context.Context, phone string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leads[phone].DoNotCall, nil
}

func (m *memStore) ListLeads(context.Context) ([]call.Lead, error) { return nil, nil }

func (m *memStore) AddLead(_ context.Context, phone, name string) (*call.Lead, error) {
	return &call.Lead{Phone: phone, Name: name}, nil
}

func (m *memStore) GetSetting(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings[key], nil
}

func (m *memStore) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *memStore) lead(phone string) (call.Lead, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[phone]
	return l, ok
}

func (m *memStore) messages(callID uuid.UUID) []call.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]call.Message, len(m.msgs[callID]))
	copy(out, m.msgs[callID])
	return out
}

type scriptedRecognizer struct {
	mu      sync.Mutex
	results []string
	errs    []error
}

func (r *scriptedRecognizer) Recognize(context.Context, []byte) (*stt.Transcription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return nil, err
	}
	if len(r.results) == 0 {
		return &stt.Transcription{Text: ""}, nil
	}
	text := r.results[0]
	r.results = r.results[1:]
	return &stt.Transcription{Text: text, GeneratedAt: time.Now()}, nil
}

type fakeTTS struct{}

func (fakeTTS) Name() string     { return "fake" }
func (fakeTTS) Identity() string { return "fake|v|m|ulaw_8000" }
func (fakeTTS) Close() error     { return nil }
func (f fakeTTS) Synthesize(_ context.Context, text string) (*tts.Result, error) {
	return &tts.Result{MuLaw: make([]byte, 2*FrameBytes), Identity: f.Identity(), CharCount: len(text)}, nil
}

// longTTS returns a clip of the requested frame count, so playback
// spans real paced time.
type longTTS struct{ frames int }

func (longTTS) Name() string     { return "long" }
func (longTTS) Identity() string { return "long|v|m|ulaw_8000" }
func (longTTS) Close() error     { return nil }
func (l longTTS) Synthesize(_ context.Context, text string) (*tts.Result, error) {
	return &tts.Result{MuLaw: make([]byte, l.frames*FrameBytes), Identity: l.Identity(), CharCount: len(text)}, nil
}

type fixedLLM struct{ reply string }

func (l fixedLLM) Name() string { return "fixed" }
func (l fixedLLM) Reply(context.Context, []assistant.Message) (string, error) {
	return l.reply, nil
}

type testRig struct {
	session *Session
	store   *memStore
	sender  *fakeSender
	closed  chan struct{}
}

func newRig(t *testing.T, rec Recognizer) *testRig {
	return newRigTTS(t, rec, fakeTTS{}, nil)
}

func newRigTTS(t *testing.T, rec Recognizer, provider tts.Provider, tune func(*config.Settings)) *testRig {
	t.Helper()
	cfg := &config.Settings{}
	cfg.ApplyDefaults()
	cfg.Recording.Enabled = false
	if tune != nil {
		tune(cfg)
	}

	store := newMemStore()
	sender := &fakeSender{}
	closed := make(chan struct{})
	var once sync.Once

	s := New(
		cfg, Logger.New(false), store, rec, provider, fixedLLM{reply: "Sure."},
		sender, func() { once.Do(func() { close(closed) }) },
	)
	return &testRig{session: s, store: store, sender: sender, closed: closed}
}

func startCall(t *testing.T, rig *testRig) uuid.UUID {
	t.Helper()
	start := &telephony.StartPayload{
		CallSid: "CA123",
		CustomParameters: map[string]string{
			"phone":    "+15550100",
			"persona":  "male",
			"greeting": "Hello from the events team",
		},
	}
	if err := rig.session.HandleStart(context.Background(), start, "MZstream"); err != nil {
		t.Fatalf("handle start: %v", err)
	}
	return rig.session.callID
}

// waitGreetingPlayed blocks until greeting playback has started and
// finished, so the test drives the next turn from silence. HandleStart
// only enqueues the greeting; the pipeline goroutine plays it.
func waitGreetingPlayed(t *testing.T, rig *testRig) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rig.sender.mediaCount() > 0 && !rig.session.player.Speaking() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("greeting was never played")
}

func TestGreetingPersistedOnceAndSpoken(t *testing.T) {
	rec := &scriptedRecognizer{}
	rig := newRig(t, rec)
	callID := startCall(t, rig)
	waitGreetingPlayed(t, rig)

	msgs := rig.store.messages(callID)
	if len(msgs) != 1 {
		t.Fatalf("expected one persisted message, got %d", len(msgs))
	}
	if msgs[0].MsgRole != assistant.ASSISTANT || msgs[0].Text != "Hello from the events team" {
		t.Errorf("greeting not persisted first: %+v", msgs[0])
	}

	// A reconnect for the same call must not repeat the greeting.
	rig2 := newRig(t, rec)
	rig2.store = rig.store
	rig2.session.store = rig.store
	startCall(t, rig2)
	if got := len(rig.store.messages(callID)); got != 1 {
		t.Errorf("greeting persisted %d times, want 1", got)
	}
}

func TestTwoAffirmativesCloseAndHangUpAfterMark(t *testing.T) {
	rec := &scriptedRecognizer{results: []string{"yes sure", "yes please"}}
	rig := newRig(t, rec)
	startCall(t, rig)
	waitGreetingPlayed(t, rig)

	rig.session.processUtterance(context.Background(), make([]byte, 20*FrameBytes))
	if _, ok := rig.store.lead("+15550100"); ok {
		t.Fatal("first affirmative must not persist a lead outcome")
	}

	rig.session.processUtterance(context.Background(), make([]byte, 20*FrameBytes))
	lead, ok := rig.store.lead("+15550100")
	if !ok || lead.Outcome != call.OutcomeInterested {
		t.Fatalf("expected interested lead, got %+v (ok=%v)", lead, ok)
	}

	// Marks were sent for greeting and both replies; the session must
	// only close once the final one is acknowledged.
	rig.session.mu.Lock()
	mark := rig.session.hangupMark
	rig.session.mu.Unlock()
	if mark == "" {
		t.Fatal("hangup mark was never armed")
	}

	select {
	case <-rig.closed:
		t.Fatal("session closed before the final mark ack")
	default:
	}

	rig.session.HandleMark("some-other-mark")
	select {
	case <-rig.closed:
		t.Fatal("session closed on an unrelated mark")
	default:
	}

	rig.session.HandleMark(mark)
	select {
	case <-rig.closed:
	case <-time.After(time.Second):
		t.Fatal("session did not close after the final mark ack")
	}
}

func TestUnusableTranscriptionsEndPolitely(t *testing.T) {
	rec := &scriptedRecognizer{errs: []error{
		fmt.Errorf("stt down"), fmt.Errorf("stt down"),
	}}
	rig := newRig(t, rec)
	callID := startCall(t, rig)
	waitGreetingPlayed(t, rig)

	rig.session.processUtterance(context.Background(), make([]byte, 20*FrameBytes))
	if _, ok := rig.store.lead("+15550100"); ok {
		t.Fatal("first unclear turn must not record an outcome")
	}

	rig.session.processUtterance(context.Background(), make([]byte, 20*FrameBytes))
	lead, ok := rig.store.lead("+15550100")
	if !ok || lead.Outcome != call.OutcomeNotInterested {
		t.Fatalf("expected not_interested lead, got %+v (ok=%v)", lead, ok)
	}

	var sawPolite bool
	for _, m := range rig.store.messages(callID) {
		if m.MsgRole == assistant.ASSISTANT && strings.Contains(m.Text, "bad moment") {
			sawPolite = true
		}
	}
	if !sawPolite {
		t.Error("polite ending line was not persisted")
	}
}

func TestTeardownPersistsConservativeOutcome(t *testing.T) {
	rec := &scriptedRecognizer{}
	rig := newRig(t, rec)
	callID := startCall(t, rig)

	rig.session.Teardown(context.Background())

	lead, ok := rig.store.lead("+15550100")
	if !ok || lead.Outcome != call.OutcomeNotInterested {
		t.Fatalf("expected conservative not_interested lead, got %+v (ok=%v)", lead, ok)
	}
	rig.store.mu.Lock()
	outcome := rig.store.finished[callID]
	rig.store.mu.Unlock()
	if outcome != call.OutcomeNotInterested {
		t.Errorf("finish outcome = %q, want not_interested", outcome)
	}

	// Second teardown is a no-op.
	rig.session.Teardown(context.Background())
}

func mediaEvent(frame []byte) *telephony.MediaPayload {
	return &telephony.MediaPayload{Payload: base64.StdEncoding.EncodeToString(frame)}
}

func TestStartReturnsWhileGreetingPlays(t *testing.T) {
	// 50 frames is a full second of paced audio; the transport read loop
	// must get control back long before that, or nothing the callee says
	// over the greeting is ever read.
	rig := newRigTTS(t, &scriptedRecognizer{}, longTTS{frames: 50}, nil)

	began := time.Now()
	startCall(t, rig)
	if elapsed := time.Since(began); elapsed > 200*time.Millisecond {
		t.Fatalf("start blocked for %v while the greeting played", elapsed)
	}

	waitGreetingPlayed(t, rig)
}

func TestBargeInStopsActivePlayback(t *testing.T) {
	rig := newRigTTS(t, &scriptedRecognizer{}, longTTS{frames: 150}, func(cfg *config.Settings) {
		cfg.Audio.BargeInEnabled = true
		cfg.Audio.BargeInGrace = 250 * time.Millisecond
		cfg.Audio.BargeInFrames = 3
	})
	startCall(t, rig)

	deadline := time.Now().Add(time.Second)
	for !rig.session.player.Speaking() {
		if time.Now().After(deadline) {
			t.Fatal("greeting playback never started")
		}
		time.Sleep(time.Millisecond)
	}

	voiced := mediaEvent(frameAt(12000))
	quiet := mediaEvent(frameAt(0))

	// Inside the grace period even a long voiced run must not cancel.
	for i := 0; i < 10; i++ {
		rig.session.HandleMedia(voiced)
	}
	if !rig.session.player.Speaking() {
		t.Fatal("barge-in fired inside the grace period")
	}
	if got := rig.sender.clearCount(); got != 0 {
		t.Fatalf("clears = %d inside the grace period, want 0", got)
	}

	time.Sleep(300 * time.Millisecond)

	// A voiced streak broken by an unvoiced frame must start over.
	rig.session.HandleMedia(voiced)
	rig.session.HandleMedia(voiced)
	rig.session.HandleMedia(quiet)
	rig.session.HandleMedia(voiced)
	rig.session.HandleMedia(voiced)
	if !rig.session.player.Speaking() {
		t.Fatal("barge-in fired on a broken voiced streak")
	}

	// The frame completing the streak cancels the job and tells the
	// transport to drop its buffered audio.
	rig.session.HandleMedia(voiced)
	if rig.session.player.Speaking() {
		t.Fatal("playback still active after a full voiced streak")
	}
	if got := rig.sender.clearCount(); got == 0 {
		t.Error("no clear was sent when playback was cancelled")
	}
}

func TestOptOutMarksDoNotCall(t *testing.T) {
	rec := &scriptedRecognizer{results: []string{"stop calling me"}}
	rig := newRig(t, rec)
	startCall(t, rig)
	waitGreetingPlayed(t, rig)

	rig.session.processUtterance(context.Background(), make([]byte, 20*FrameBytes))

	lead, ok := rig.store.lead("+15550100")
	if !ok || !lead.DoNotCall {
		t.Fatalf("expected DNC lead, got %+v (ok=%v)", lead, ok)
	}
}
