package entity

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the persisted counterpart of a live session. It belongs to
// exactly one user and every store access is scoped by UserId.
type Conversation struct {
	Id           uuid.UUID
	UserId       uuid.UUID
	Title        string
	Messages     []Message
	SelectedDocs []DocumentID
	SessionToken *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = CloneMessages(c.Messages)
	if c.SelectedDocs != nil {
		out.SelectedDocs = append([]DocumentID(nil), c.SelectedDocs...)
	}
	if c.SessionToken != nil {
		token := *c.SessionToken
		out.SessionToken = &token
	}
	return &out
}
