package events

import (
	"time"

	"kb-assistant-be/internal/constant"

	"github.com/google/uuid"
)

func ConversationSaved(userID, conversationID uuid.UUID, title string, created bool, at time.Time) BaseEvent {
	return BaseEvent{
		Type: constant.EventConversationSaved,
		Data: map[string]interface{}{
			"user_id":         userID.String(),
			"conversation_id": conversationID.String(),
			"title":           title,
			"created":         created,
			"entity_type":     "conversation",
			"entity_id":       conversationID.String(),
		},
		OccurredAt: at,
	}
}

func ConversationDeleted(userID, conversationID uuid.UUID, at time.Time) BaseEvent {
	return BaseEvent{
		Type: constant.EventConversationDeleted,
		Data: map[string]interface{}{
			"user_id":         userID.String(),
			"conversation_id": conversationID.String(),
			"entity_type":     "conversation",
			"entity_id":       conversationID.String(),
		},
		OccurredAt: at,
	}
}

// UserID extracts the owning user of a conversation event.
func UserID(e Event) (uuid.UUID, bool) {
	raw, ok := e.Payload()["user_id"].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
