package contract

import (
	"context"
	"errors"

	"kb-assistant-be/internal/entity"

	"github.com/google/uuid"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository stores conversation records. Every method is scoped
// to the owning user; there is deliberately no lookup by id alone.
type ConversationRepository interface {
	Create(ctx context.Context, conv *entity.Conversation) error
	// Update overwrites messages, selected docs, session token and updatedAt.
	// Title and createdAt are never rewritten.
	Update(ctx context.Context, conv *entity.Conversation) error
	// Delete returns ErrConversationNotFound when no record matched.
	Delete(ctx context.Context, userID, id uuid.UUID) error
	// FindByID returns nil, nil when the user owns no such record.
	FindByID(ctx context.Context, userID, id uuid.UUID) (*entity.Conversation, error)
	// FindAllByUser returns the user's conversations, newest updatedAt first.
	FindAllByUser(ctx context.Context, userID uuid.UUID) ([]*entity.Conversation, error)
}
