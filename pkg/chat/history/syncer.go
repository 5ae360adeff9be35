// Package history reconciles live sessions with the conversation store and
// derives the grouped, searchable history list.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kb-assistant-be/internal/entity"
	"kb-assistant-be/internal/pkg/logger"
	"kb-assistant-be/internal/repository/contract"
	"kb-assistant-be/pkg/events"

	"github.com/google/uuid"
)

const module = "ConversationSync"

type Option func(*Syncer)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(s *Syncer) { s.newID = newID }
}

// Syncer upserts conversations and keeps a per-user copy of the last listing.
// Concurrent saves of the same record are last-writer-wins.
type Syncer struct {
	repo      contract.ConversationRepository
	publisher events.Publisher
	logger    logger.ILogger
	now       func() time.Time
	newID     func() uuid.UUID

	mu    sync.RWMutex
	lists map[uuid.UUID][]*entity.Conversation
}

func NewSyncer(repo contract.ConversationRepository, publisher events.Publisher, log logger.ILogger, opts ...Option) *Syncer {
	s := &Syncer{
		repo:      repo,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
		newID:     uuid.New,
		lists:     make(map[uuid.UUID][]*entity.Conversation),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadAll fetches every conversation of the user, newest first, and caches
// the result for History.
func (s *Syncer) LoadAll(ctx context.Context, userID uuid.UUID) ([]*entity.Conversation, error) {
	convs, err := s.repo.FindAllByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}

	s.mu.Lock()
	s.lists[userID] = convs
	s.mu.Unlock()

	return cloneAll(convs), nil
}

// Save upserts conv for userID and returns the record id. conv.Id == uuid.Nil
// marks a conversation that was never saved; a fresh id is minted for it.
// The title is derived only when the record is created.
func (s *Syncer) Save(ctx context.Context, userID uuid.UUID, conv *entity.Conversation) (uuid.UUID, error) {
	if len(conv.Messages) == 0 {
		return conv.Id, nil
	}

	now := s.now()
	id := conv.Id

	var existing *entity.Conversation
	if id != uuid.Nil {
		found, err := s.repo.FindByID(ctx, userID, id)
		if err != nil {
			return id, fmt.Errorf("look up conversation %s: %w", id, err)
		}
		existing = found
	} else {
		id = s.newID()
	}

	record := conv.Clone()
	record.Id = id
	record.UserId = userID
	record.UpdatedAt = now

	created := existing == nil
	if created {
		record.Title = Title(record.Messages)
		record.CreatedAt = now
		if err := s.repo.Create(ctx, record); err != nil {
			return conv.Id, fmt.Errorf("create conversation: %w", err)
		}
	} else {
		record.Title = existing.Title
		record.CreatedAt = existing.CreatedAt
		if err := s.repo.Update(ctx, record); err != nil {
			return id, fmt.Errorf("update conversation %s: %w", id, err)
		}
	}

	s.logger.Debug(module, "Conversation saved", map[string]interface{}{
		"user_id":         userID,
		"conversation_id": id,
		"created":         created,
		"messages":        len(record.Messages),
	})

	s.reload(ctx, userID)
	s.publish(ctx, events.ConversationSaved(userID, id, record.Title, created, now))
	return id, nil
}

// Delete removes one record of the user. It returns
// contract.ErrConversationNotFound when the user owns no such record.
func (s *Syncer) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, contract.ErrConversationNotFound) {
			return err
		}
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}

	s.reload(ctx, userID)
	s.publish(ctx, events.ConversationDeleted(userID, id, s.now()))
	return nil
}

// Get returns one record of the user or contract.ErrConversationNotFound.
func (s *Syncer) Get(ctx context.Context, userID, id uuid.UUID) (*entity.Conversation, error) {
	conv, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	if conv == nil {
		return nil, contract.ErrConversationNotFound
	}
	return conv, nil
}

// History groups the user's conversations by recency, filtered by query.
// now carries the viewer's time zone. The cached listing is used when
// present; otherwise the store is queried.
func (s *Syncer) History(ctx context.Context, userID uuid.UUID, query string, now time.Time) ([]Group, error) {
	s.mu.RLock()
	convs, ok := s.lists[userID]
	s.mu.RUnlock()

	if !ok {
		loaded, err := s.LoadAll(ctx, userID)
		if err != nil {
			return nil, err
		}
		return Bucket(loaded, query, now), nil
	}
	return Bucket(cloneAll(convs), query, now), nil
}

// Forget drops the cached listing of a user whose session ended.
func (s *Syncer) Forget(userID uuid.UUID) {
	s.mu.Lock()
	delete(s.lists, userID)
	s.mu.Unlock()
}

func (s *Syncer) reload(ctx context.Context, userID uuid.UUID) {
	if _, err := s.LoadAll(ctx, userID); err != nil {
		s.logger.Warn(module, "Failed to reload conversation list", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}

func (s *Syncer) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error(module, "Failed to publish event", map[string]interface{}{
			"type":  event.EventType(),
			"error": err.Error(),
		})
	}
}

func cloneAll(convs []*entity.Conversation) []*entity.Conversation {
	out := make([]*entity.Conversation, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.Clone())
	}
	return out
}
