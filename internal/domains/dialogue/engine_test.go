package dialogue

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/xpanvictor/vocall/internal/config"
	"github.com/xpanvictor/vocall/internal/domains/call"
	"github.com/xpanvictor/vocall/pkg/Logger"
	"github.com/xpanvictor/vocall/pkg/assistant"
)

type stubLLM struct {
	reply string
	err   error
	calls int
}

func (s *stubLLM) Name() string { return "stub" }
func (s *stubLLM) Reply(context.Context, []assistant.Message) (string, error) {
	s.calls++
	return s.reply, s.err
}

func newEngine(t *testing.T, guided bool, llm assistant.Assistant) *Engine {
	t.Helper()
	if llm == nil {
		llm = &stubLLM{reply: "A fair question."}
	}
	return NewEngine(
		llm,
		ParseFAQ("how much does it cost | It starts at two hundred."),
		"We host team events.",
		"male",
		config.FlowConfig{GuidedEnabled: guided, MinParticipants: 15},
		time.Second,
		Logger.New(false),
	)
}

func decide(t *testing.T, e *Engine, text string) Decision {
	t.Helper()
	return e.Decide(context.Background(), text, nil)
}

func TestOptOutFromEveryState(t *testing.T) {
	states := []string{
		StateCheckInterest, StateAskPurpose, StateAskDate,
		StateAskParticipants, StateParticipantsPersuade, StateClose,
	}
	for _, state := range states {
		e := newEngine(t, true, nil)
		e.fsm.SetState(state)

		d := decide(t, e, "stop calling me")
		if d.Outcome != call.OutcomeDoNotCall {
			t.Errorf("from %s: outcome = %q, want do_not_call", state, d.Outcome)
		}
		if !d.EndCall {
			t.Errorf("from %s: expected EndCall", state)
		}
		if e.State() != StateEnd {
			t.Errorf("from %s: state = %s, want end", state, e.State())
		}
	}
}

func TestTwoStepClose(t *testing.T) {
	e := newEngine(t, false, nil)

	first := decide(t, e, "yes, sure")
	if first.Outcome != "" {
		t.Errorf("first affirmative must not persist an outcome, got %q", first.Outcome)
	}
	if first.EndCall {
		t.Error("first affirmative must not end the call")
	}
	if e.State() != StateClose {
		t.Fatalf("state = %s, want close", e.State())
	}
	if !strings.Contains(first.Reply, questionHandoff) {
		t.Errorf("expected handoff question, got %q", first.Reply)
	}

	second := decide(t, e, "yes please")
	if second.Outcome != call.OutcomeInterested {
		t.Errorf("second affirmative outcome = %q, want interested", second.Outcome)
	}
	if !second.EndCall {
		t.Error("second affirmative must end the call")
	}
	if e.State() != StateEnd {
		t.Errorf("state = %s, want end", e.State())
	}
}

func TestOutcomePersistedOnce(t *testing.T) {
	e := newEngine(t, false, nil)
	decide(t, e, "yes")
	d := decide(t, e, "yes")
	if d.Outcome != call.OutcomeInterested {
		t.Fatalf("expected interested outcome, got %q", d.Outcome)
	}
	if e.Abort() != "" {
		t.Error("Abort after a recorded outcome must return empty")
	}
}

func TestGuidedFlowWalksSlots(t *testing.T) {
	e := newEngine(t, true, nil)

	decide(t, e, "yeah, tell me more")
	if e.State() != StateAskPurpose {
		t.Fatalf("state = %s, want ask_purpose", e.State())
	}

	// Bare acknowledgments never advance a slot.
	d := decide(t, e, "ok")
	if e.State() != StateAskPurpose {
		t.Fatalf("ack advanced the state to %s", e.State())
	}
	if !strings.Contains(d.Reply, questionPurpose) {
		t.Errorf("expected purpose reprompt, got %q", d.Reply)
	}

	decide(t, e, "a team building workshop")
	if e.State() != StateAskDate {
		t.Fatalf("state = %s, want ask_date", e.State())
	}
	decide(t, e, "sometime in March")
	if e.State() != StateAskParticipants {
		t.Fatalf("state = %s, want ask_participants", e.State())
	}
	if e.Slots().Purpose != "a team building workshop" {
		t.Errorf("purpose slot = %q", e.Slots().Purpose)
	}
}

func TestParticipantsBranching(t *testing.T) {
	// Twelve participants with a minimum of fifteen diverts to the
	// persuasion step.
	e := newEngine(t, true, nil)
	e.fsm.SetState(StateAskParticipants)
	d := decide(t, e, "about 12 people")
	if e.State() != StateParticipantsPersuade {
		t.Fatalf("state = %s, want participants_persuade", e.State())
	}
	if d.EndCall || d.Outcome != "" {
		t.Error("persuasion must not end the call or record an outcome")
	}

	// Twenty goes straight to close with the handoff question.
	e2 := newEngine(t, true, nil)
	e2.fsm.SetState(StateAskParticipants)
	d2 := decide(t, e2, "20")
	if e2.State() != StateClose {
		t.Fatalf("state = %s, want close", e2.State())
	}
	if !strings.Contains(d2.Reply, questionHandoff) {
		t.Errorf("expected handoff question, got %q", d2.Reply)
	}
}

func TestPersuasionIsOneTime(t *testing.T) {
	e := newEngine(t, true, nil)
	e.fsm.SetState(StateAskParticipants)

	decide(t, e, "12")
	if e.State() != StateParticipantsPersuade {
		t.Fatalf("state = %s, want participants_persuade", e.State())
	}

	// A still-low revised count now proceeds to the handoff offer
	// instead of looping on persuasion.
	decide(t, e, "maybe 10 then")
	if e.State() != StateClose {
		t.Fatalf("state = %s, want close", e.State())
	}
}

func TestTwoStrikeDecline(t *testing.T) {
	e := newEngine(t, false, nil)

	first := decide(t, e, "not interested")
	if first.EndCall || first.Outcome != "" {
		t.Error("first decline must keep the call alive")
	}
	if e.State() != StateCheckInterest {
		t.Errorf("state = %s, want check_interest", e.State())
	}

	second := decide(t, e, "no, really")
	if !second.EndCall {
		t.Error("second decline must end the call")
	}
	if second.Outcome != call.OutcomeNotInterested {
		t.Errorf("outcome = %q, want not_interested", second.Outcome)
	}
}

func TestFAQBeatsLLM(t *testing.T) {
	llm := &stubLLM{reply: "model answer"}
	e := newEngine(t, false, llm)

	d := decide(t, e, "how much is it going to cost?")
	if !strings.Contains(d.Reply, "It starts at two hundred.") {
		t.Errorf("expected FAQ answer, got %q", d.Reply)
	}
	if !strings.Contains(d.Reply, questionInterest) {
		t.Errorf("FAQ answer must re-ask the pending question, got %q", d.Reply)
	}
	if llm.calls != 0 {
		t.Errorf("LLM consulted despite FAQ hit, %d calls", llm.calls)
	}
}

func TestLLMFailureFallsBackToReprompt(t *testing.T) {
	llm := &stubLLM{err: fmt.Errorf("model down")}
	e := newEngine(t, false, llm)

	d := decide(t, e, "we mostly do outdoor stuff honestly")
	if d.Reply != questionInterest {
		t.Errorf("expected deterministic reprompt, got %q", d.Reply)
	}
	if e.State() != StateCheckInterest {
		t.Errorf("state must be restored after objection handling, got %s", e.State())
	}
}

func TestUnclearBoundedReprompt(t *testing.T) {
	e := newEngine(t, false, nil)

	first := e.Unclear(context.Background())
	if first.EndCall {
		t.Error("first unclear must re-ask, not end")
	}
	second := e.Unclear(context.Background())
	if !second.EndCall {
		t.Error("second unclear must end politely")
	}
	if second.Outcome != call.OutcomeNotInterested {
		t.Errorf("outcome = %q, want not_interested", second.Outcome)
	}
}

func TestUnclearCounterResetsOnGoodTurn(t *testing.T) {
	e := newEngine(t, false, nil)
	e.Unclear(context.Background())
	decide(t, e, "yes")
	d := e.Unclear(context.Background())
	if d.EndCall {
		t.Error("a clear turn must reset the unclear strike counter")
	}
}

func TestRepeatRequestReissuesPendingQuestion(t *testing.T) {
	e := newEngine(t, true, nil)
	e.fsm.SetState(StateAskDate)
	d := decide(t, e, "sorry, say that again?")
	if d.Reply != questionDate {
		t.Errorf("expected date question, got %q", d.Reply)
	}
	if e.State() != StateAskDate {
		t.Errorf("repeat must not change state, got %s", e.State())
	}
}

func TestAbortGivesConservativeOutcome(t *testing.T) {
	e := newEngine(t, false, nil)
	if got := e.Abort(); got != call.OutcomeNotInterested {
		t.Errorf("Abort = %q, want not_interested", got)
	}
	if got := e.Abort(); got != "" {
		t.Errorf("second Abort = %q, want empty", got)
	}
}
