package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kb-assistant-be/internal/entity"
	"kb-assistant-be/internal/repository/contract"

	"github.com/google/uuid"
)

// ConversationRepository keeps conversations in process memory. It backs the
// terminal client and the tests; records are copied on the way in and out.
type ConversationRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*entity.Conversation
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		items: make(map[uuid.UUID]*entity.Conversation),
	}
}

func (r *ConversationRepository) Create(_ context.Context, conv *entity.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[conv.Id]; exists {
		return fmt.Errorf("conversation %s already exists", conv.Id)
	}
	r.items[conv.Id] = conv.Clone()
	return nil
}

func (r *ConversationRepository) Update(_ context.Context, conv *entity.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[conv.Id]
	if !ok || stored.UserId != conv.UserId {
		return contract.ErrConversationNotFound
	}

	next := conv.Clone()
	stored.Messages = next.Messages
	stored.SelectedDocs = next.SelectedDocs
	stored.SessionToken = next.SessionToken
	stored.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *ConversationRepository) Delete(_ context.Context, userID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[id]
	if !ok || stored.UserId != userID {
		return contract.ErrConversationNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *ConversationRepository) FindByID(_ context.Context, userID, id uuid.UUID) (*entity.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.items[id]
	if !ok || stored.UserId != userID {
		return nil, nil
	}
	return stored.Clone(), nil
}

func (r *ConversationRepository) FindAllByUser(_ context.Context, userID uuid.UUID) ([]*entity.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.Conversation, 0)
	for _, c := range r.items {
		if c.UserId == userID {
			out = append(out, c.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Len reports the number of stored records across all users.
func (r *ConversationRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
