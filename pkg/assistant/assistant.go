package assistant

import (
	"context"
	"time"
)

type Role string

const (
	USER      Role = "user"
	ASSISTANT Role = "assistant"
	SYSTEM    Role = "system"
)

type Message struct {
	Content   string
	CreatedAt time.Time
	MsgRole   Role
}

// Assistant produces one reply for a conversation turn. Implementations
// must respect ctx cancellation since callers hold a live phone line.
type Assistant interface {
	Reply(ctx context.Context, msgs []Message) (string, error)
	Name() string
}
