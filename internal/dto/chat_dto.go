package dto

import (
	"time"

	"github.com/google/uuid"
)

type SendMessageRequest struct {
	Question string `json:"question" validate:"required,notblank,max=8000"`
}

type EditMessageRequest struct {
	Content string `json:"content" validate:"required,notblank,max=8000"`
}

type UpdateDraftRequest struct {
	Text string `json:"text" validate:"max=8000"`
}

// UpdateUIStateRequest changes the hover/edit focus. A nil field is left as is;
// editing_index -1 cancels editing.
type UpdateUIStateRequest struct {
	HoveredIndex *int    `json:"hovered_index"`
	EditingIndex *int    `json:"editing_index"`
	EditingText  *string `json:"editing_text"`
}

type SaveEditingRequest struct {
	Content *string `json:"content" validate:"omitempty,max=8000"`
}

type MessageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type DocumentResponse struct {
	Id        string     `json:"id"`
	Filename  string     `json:"filename"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Selected  bool       `json:"selected"`
}

type SessionResponse struct {
	ConversationId *uuid.UUID          `json:"conversation_id"`
	Messages       []*MessageResponse  `json:"messages"`
	SelectedDocs   []string            `json:"selected_docs"`
	Documents      []*DocumentResponse `json:"documents"`
	HasSession     bool                `json:"has_session"`
	Draft          string              `json:"draft"`
	Busy           bool                `json:"busy"`
	Phase          string              `json:"phase"`
	FollowUps      []string            `json:"follow_ups"`
	HoveredIndex   int                 `json:"hovered_index"`
	EditingIndex   int                 `json:"editing_index"`
	EditingText    string              `json:"editing_text"`
	LastError      string              `json:"last_error,omitempty"`
}

type ConversationSummaryResponse struct {
	Id           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type HistoryGroupResponse struct {
	Key           string                         `json:"key"`
	Label         string                         `json:"label"`
	Conversations []*ConversationSummaryResponse `json:"conversations"`
}

type DocumentListResponse struct {
	Documents    []*DocumentResponse `json:"documents"`
	SelectedDocs []string            `json:"selected_docs"`
}
