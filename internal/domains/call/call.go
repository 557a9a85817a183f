package call

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/vocall/pkg/assistant"
)

// Outcome is the disposition recorded for a lead when a call ends.
type Outcome string

const (
	OutcomeInterested    Outcome = "interested"
	OutcomeNotInterested Outcome = "not_interested"
	OutcomeDoNotCall     Outcome = "do_not_call"
)

type Call struct {
	ID            uuid.UUID
	CallSid       string
	Phone         string
	Outcome       Outcome
	RecordingPath string
	StartedAt     time.Time
	EndedAt       *time.Time
	Messages      []Message
}

type Message struct {
	ID        uuid.UUID
	CallID    uuid.UUID
	MsgRole   assistant.Role
	Text      string
	CreatedAt time.Time
}

type Lead struct {
	ID          uuid.UUID
	Phone       string
	Name        string
	Outcome     Outcome
	DoNotCall   bool
	LastCalled  *time.Time
	ContactedAt *time.Time
}

// Store persists calls, transcripts and lead dispositions.
type Store interface {
	// CreateOrGetCall returns the call for a carrier call sid, creating
	// it on first sight. A reconnecting media stream for the same sid
	// must land on the same call row.
	CreateOrGetCall(ctx context.Context, callSid, phone string) (*Call, error)

	AddMessage(ctx context.Context, callID uuid.UUID, role assistant.Role, text string) error
	GetMessages(ctx context.Context, callID uuid.UUID) ([]Message, error)

	// FinishCall stamps the end time, outcome and recording path.
	FinishCall(ctx context.Context, callID uuid.UUID, outcome Outcome, recordingPath string) error

	ListCalls(ctx context.Context, limit int) ([]Call, error)

	// UpsertLead records the disposition for a phone number. A
	// do_not_call outcome also raises the lead's DNC flag.
	UpsertLead(ctx context.Context, phone string, outcome Outcome) error
	IsDoNotCall(ctx context.Context, phone string) (bool, error)
	ListLeads(ctx context.Context) ([]Lead, error)
	AddLead(ctx context.Context, phone, name string) (*Lead, error)

	// Settings hold operator-editable campaign text such as the FAQ
	// corpus and the pitch facts.
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}
