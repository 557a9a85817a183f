package call

import (
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/vocall/internal/domains/call"
	"github.com/xpanvictor/vocall/pkg/assistant"
)

type CallEntity struct {
	ID            uuid.UUID `gorm:"primaryKey;type:char(36);not null"`
	CallSid       string    `gorm:"column:call_sid;type:varchar(64);uniqueIndex;not null"`
	Phone         string    `gorm:"type:varchar(32);index"`
	Outcome       string    `gorm:"type:varchar(20)"`
	RecordingPath string    `gorm:"column:recording_path;type:varchar(255)"`
	StartedAt     time.Time `gorm:"autoCreateTime(3)"`
	EndedAt       *time.Time
}

func (CallEntity) TableName() string { return "calls" }

func (e *CallEntity) ToDomain() *call.Call {
	return &call.Call{
		ID:            e.ID,
		CallSid:       e.CallSid,
		Phone:         e.Phone,
		Outcome:       call.Outcome(e.Outcome),
		RecordingPath: e.RecordingPath,
		StartedAt:     e.StartedAt,
		EndedAt:       e.EndedAt,
	}
}

type MessageEntity struct {
	ID        uuid.UUID `gorm:"primaryKey;type:char(36);not null"`
	CallID    uuid.UUID `gorm:"column:call_id;type:char(36);index;not null"`
	MsgRole   string    `gorm:"column:msg_role;type:varchar(10)"`
	Text      string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime(3)"`
}

func (MessageEntity) TableName() string { return "messages" }

func (e *MessageEntity) ToDomain() *call.Message {
	return &call.Message{
		ID:        e.ID,
		CallID:    e.CallID,
		MsgRole:   assistant.Role(e.MsgRole),
		Text:      e.Text,
		CreatedAt: e.CreatedAt,
	}
}

type LeadEntity struct {
	ID          uuid.UUID `gorm:"primaryKey;type:char(36);not null"`
	Phone       string    `gorm:"type:varchar(32);uniqueIndex;not null"`
	Name        string    `gorm:"type:varchar(100)"`
	Outcome     string    `gorm:"type:varchar(20)"`
	DoNotCall   bool      `gorm:"column:do_not_call;default:false"`
	LastCalled  *time.Time
	ContactedAt *time.Time
}

func (LeadEntity) TableName() string { return "leads" }

func (e *LeadEntity) ToDomain() *call.Lead {
	return &call.Lead{
		ID:          e.ID,
		Phone:       e.Phone,
		Name:        e.Name,
		Outcome:     call.Outcome(e.Outcome),
		DoNotCall:   e.DoNotCall,
		LastCalled:  e.LastCalled,
		ContactedAt: e.ContactedAt,
	}
}

type SettingEntity struct {
	Key   string `gorm:"primaryKey;type:varchar(64)"`
	Value string `gorm:"type:text"`
}

func (SettingEntity) TableName() string { return "settings" }
