package dialogue

import (
	"context"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"github.com/xpanvictor/vocall/internal/config"
	"github.com/xpanvictor/vocall/internal/domains/call"
	"github.com/xpanvictor/vocall/pkg/Logger"
	"github.com/xpanvictor/vocall/pkg/assistant"
)

// Conversation states.
const (
	StateCheckInterest        = "check_interest"
	StateAskPurpose           = "ask_purpose"
	StateAskDate              = "ask_date"
	StateAskParticipants      = "ask_participants"
	StateParticipantsPersuade = "participants_persuade"
	StateHandleObjection      = "handle_objection"
	StateClose                = "close"
	StateEnd                  = "end"
)

// Transition events.
const (
	eventOptOut       = "opt_out"
	eventGiveUp       = "give_up"
	eventBeginGuided  = "begin_guided"
	eventOfferHandoff = "offer_handoff"
	eventSlotPurpose  = "slot_purpose"
	eventSlotDate     = "slot_date"
	eventPersuade     = "persuade"
	eventConfirm      = "confirm"
)

// Fixed lines. The handoff question doubles as the deterministic
// fallback when the model is unavailable.
const (
	lineOptOut       = "Understood, I have added you to our do-not-call list. You will not hear from us again. Have a good day."
	lineTransfer     = "Of course, I am connecting you with a colleague now. Thank you for your time."
	lineWait         = "Sure, take your time. I am still here."
	lineObjection    = "I understand. It only takes a few minutes to set up and there is no commitment at this stage."
	lineDeclineClose = "No problem at all, thank you for your time. Have a great day."
	linePersuade     = "That is a bit below what we usually host, but smaller groups often get a lot more out of each session. Shall I connect you with a colleague to see what we can do?"
	lineConfirmClose = "Wonderful, my colleague will be in touch shortly to finalize the details. Thank you and have a great day."
	lineUnclear      = "Sorry, I did not quite catch that."
	linePoliteEnd    = "It seems this is a bad moment. I will let you go, thank you for your time."
	questionInterest = "Would you be interested in hearing a bit more?"
	questionHandoff  = "Shall I put you through to a colleague who can set everything up?"
	questionPurpose  = "What kind of event did you have in mind?"
	questionDate     = "Do you already have a preferred date?"
	questionCount    = "Roughly how many participants do you expect?"
)

// Slots are the values captured by the guided flow.
type Slots struct {
	Purpose      string
	Date         string
	Participants int
}

// Decision is one turn's outcome: the line to speak, whether the call
// should end after it, and at most once per call a lead outcome to
// persist.
type Decision struct {
	Reply   string
	EndCall bool
	Outcome call.Outcome
}

// Engine drives one call's conversation. It is not goroutine-safe; the
// owning session is its only caller.
type Engine struct {
	fsm        *fsm.FSM
	llm        assistant.Assistant
	faq        *FAQ
	pitch      string
	persona    string
	guided     bool
	minCount   int
	llmTimeout time.Duration
	logger     *Logger.Logger

	slots      Slots
	declines   int
	unclear    int
	persuaded  bool
	outcomeSet bool
}

func NewEngine(
	llm assistant.Assistant,
	faq *FAQ,
	pitch string,
	persona string,
	flow config.FlowConfig,
	llmTimeout time.Duration,
	logger *Logger.Logger,
) *Engine {
	active := []string{
		StateCheckInterest, StateAskPurpose, StateAskDate,
		StateAskParticipants, StateParticipantsPersuade,
		StateHandleObjection, StateClose,
	}
	return &Engine{
		fsm: fsm.NewFSM(
			StateCheckInterest,
			fsm.Events{
				{Name: eventOptOut, Src: active, Dst: StateEnd},
				{Name: eventGiveUp, Src: active, Dst: StateEnd},
				{Name: eventBeginGuided, Src: []string{StateCheckInterest}, Dst: StateAskPurpose},
				{Name: eventOfferHandoff, Src: []string{
					StateCheckInterest, StateAskParticipants, StateParticipantsPersuade,
				}, Dst: StateClose},
				{Name: eventSlotPurpose, Src: []string{StateAskPurpose}, Dst: StateAskDate},
				{Name: eventSlotDate, Src: []string{StateAskDate}, Dst: StateAskParticipants},
				{Name: eventPersuade, Src: []string{StateAskParticipants}, Dst: StateParticipantsPersuade},
				{Name: eventConfirm, Src: []string{StateClose}, Dst: StateEnd},
			},
			fsm.Callbacks{},
		),
		llm:        llm,
		faq:        faq,
		pitch:      pitch,
		persona:    persona,
		guided:     flow.GuidedEnabled,
		minCount:   flow.MinParticipants,
		llmTimeout: llmTimeout,
		logger:     logger,
	}
}

func (e *Engine) State() string { return e.fsm.Current() }
func (e *Engine) Ended() bool   { return e.fsm.Current() == StateEnd }
func (e *Engine) Slots() Slots  { return e.slots }

// OutcomeRecorded reports whether a terminal decision has already
// carried a lead outcome.
func (e *Engine) OutcomeRecorded() bool { return e.outcomeSet }

// Decide maps one finalized utterance to a reply. history is the
// persisted transcript so far, used only by the model fallback.
func (e *Engine) Decide(ctx context.Context, text string, history []assistant.Message) Decision {
	e.unclear = 0
	intent := Classify(text)
	e.logger.Debugf("state=%s intent=%s text=%q", e.fsm.Current(), intent, text)

	switch intent {
	case IntentOptOut:
		e.event(ctx, eventOptOut)
		return Decision{Reply: lineOptOut, EndCall: true, Outcome: e.takeOutcome(call.OutcomeDoNotCall)}
	case IntentTransfer:
		e.event(ctx, eventGiveUp)
		return Decision{Reply: lineTransfer, EndCall: true, Outcome: e.takeOutcome(call.OutcomeInterested)}
	case IntentWait:
		return Decision{Reply: lineWait}
	case IntentRepeat:
		return Decision{Reply: e.Reprompt()}
	case IntentDecline:
		return e.onDecline(ctx)
	}

	switch e.fsm.Current() {
	case StateCheckInterest:
		if intent == IntentAffirm {
			if e.guided {
				e.event(ctx, eventBeginGuided)
				return Decision{Reply: "Great. " + questionPurpose}
			}
			e.event(ctx, eventOfferHandoff)
			return Decision{Reply: "Great. " + questionHandoff}
		}
		if intent == IntentSmalltalk {
			return Decision{Reply: "I am doing well, thanks for asking. " + questionInterest}
		}
		return e.handleObjection(ctx, text, history)

	case StateAskPurpose:
		if IsAckOnly(text) || intent == IntentAffirm || intent == IntentSmalltalk {
			return Decision{Reply: e.Reprompt()}
		}
		e.slots.Purpose = text
		e.event(ctx, eventSlotPurpose)
		return Decision{Reply: "Got it. " + questionDate}

	case StateAskDate:
		if IsAckOnly(text) || intent == IntentSmalltalk {
			return Decision{Reply: e.Reprompt()}
		}
		e.slots.Date = text
		e.event(ctx, eventSlotDate)
		return Decision{Reply: "Noted. " + questionCount}

	case StateAskParticipants:
		n, ok := ExtractNumber(text)
		if !ok {
			if IsAckOnly(text) {
				return Decision{Reply: e.Reprompt()}
			}
			return e.handleObjection(ctx, text, history)
		}
		e.slots.Participants = n
		if n < e.minCount && !e.persuaded {
			e.persuaded = true
			e.event(ctx, eventPersuade)
			return Decision{Reply: linePersuade}
		}
		e.event(ctx, eventOfferHandoff)
		return Decision{Reply: "Perfect. " + questionHandoff}

	case StateParticipantsPersuade:
		if intent == IntentAffirm {
			e.event(ctx, eventOfferHandoff)
			return Decision{Reply: "Great. " + questionHandoff}
		}
		if n, ok := ExtractNumber(text); ok {
			e.slots.Participants = n
			e.event(ctx, eventOfferHandoff)
			return Decision{Reply: "Perfect. " + questionHandoff}
		}
		return e.handleObjection(ctx, text, history)

	case StateClose:
		if intent == IntentAffirm {
			e.event(ctx, eventConfirm)
			return Decision{Reply: lineConfirmClose, EndCall: true, Outcome: e.takeOutcome(call.OutcomeInterested)}
		}
		return e.handleObjection(ctx, text, history)
	}

	return e.handleObjection(ctx, text, history)
}

// Unclear applies the bounded reprompt policy for unusable
// transcriptions: one more chance, then a polite end.
func (e *Engine) Unclear(ctx context.Context) Decision {
	e.unclear++
	if e.unclear == 1 {
		return Decision{Reply: lineUnclear + " " + e.Reprompt()}
	}
	e.event(ctx, eventGiveUp)
	return Decision{Reply: linePoliteEnd, EndCall: true, Outcome: e.takeOutcome(call.OutcomeNotInterested)}
}

// Abort returns the conservative outcome to persist when the transport
// drops mid-call, or empty when a real outcome was already recorded.
func (e *Engine) Abort() call.Outcome {
	return e.takeOutcome(call.OutcomeNotInterested)
}

// Reprompt is the pending question for the current state.
func (e *Engine) Reprompt() string {
	switch e.fsm.Current() {
	case StateAskPurpose:
		return questionPurpose
	case StateAskDate:
		return questionDate
	case StateAskParticipants:
		return questionCount
	case StateParticipantsPersuade:
		return linePersuade
	case StateClose:
		return questionHandoff
	default:
		return questionInterest
	}
}

// onDecline implements the two-strike decline: the first "no" gets one
// short objection-handling line, the second ends the call.
func (e *Engine) onDecline(ctx context.Context) Decision {
	e.declines++
	if e.declines == 1 && e.fsm.Current() != StateEnd {
		return Decision{Reply: lineObjection + " " + e.Reprompt()}
	}
	e.event(ctx, eventGiveUp)
	return Decision{Reply: lineDeclineClose, EndCall: true, Outcome: e.takeOutcome(call.OutcomeNotInterested)}
}

// handleObjection answers free-form questions: first the knowledge
// base, then the model under a hard timeout, finally a plain reprompt.
// The state is parked in handle_objection for the duration and restored
// so the pending question stays pending.
func (e *Engine) handleObjection(ctx context.Context, text string, history []assistant.Message) Decision {
	prev := e.fsm.Current()
	reprompt := e.Reprompt()

	if answer, ok := e.faq.Match(text); ok {
		return Decision{Reply: answer + " " + reprompt}
	}

	e.fsm.SetState(StateHandleObjection)
	defer e.fsm.SetState(prev)

	llmCtx, cancel := context.WithTimeout(ctx, e.llmTimeout)
	defer cancel()

	msgs := make([]assistant.Message, 0, len(history)+2)
	msgs = append(msgs, assistant.Message{
		MsgRole: assistant.SYSTEM,
		Content: e.systemPrompt(reprompt),
	})
	msgs = append(msgs, history...)
	msgs = append(msgs, assistant.Message{MsgRole: assistant.USER, Content: text})

	reply, err := e.llm.Reply(llmCtx, msgs)
	if err != nil {
		e.logger.Warnf("llm fallback failed, using reprompt: %v", err)
		return Decision{Reply: reprompt}
	}
	return Decision{Reply: reply}
}

func (e *Engine) systemPrompt(reprompt string) string {
	return fmt.Sprintf(
		"You are a polite phone agent for an event-hosting company. "+
			"Campaign facts: %s. The callee is %s; use matching pronouns and grammar. "+
			"Answer in at most two short spoken sentences, stay on topic, "+
			"and always end with this exact question: %q",
		e.pitch, e.persona, reprompt,
	)
}

func (e *Engine) takeOutcome(o call.Outcome) call.Outcome {
	if e.outcomeSet {
		return ""
	}
	e.outcomeSet = true
	return o
}

func (e *Engine) event(ctx context.Context, name string) {
	if err := e.fsm.Event(ctx, name); err != nil {
		e.logger.Warnf("fsm event %s from %s: %v", name, e.fsm.Current(), err)
	}
}
