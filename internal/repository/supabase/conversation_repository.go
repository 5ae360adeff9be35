// Package supabase stores conversations in a hosted Supabase project through
// its PostgREST interface.
package supabase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"kb-assistant-be/internal/entity"
	"kb-assistant-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/supabase-community/supabase-go"
)

const conversationsTable = "conversations"

type Config struct {
	URL    string
	APIKey string
}

type conversationRow struct {
	Id           uuid.UUID           `json:"id"`
	UserId       uuid.UUID           `json:"user_id"`
	Title        string              `json:"title"`
	Messages     []entity.Message    `json:"messages"`
	SelectedDocs []entity.DocumentID `json:"selected_docs"`
	SessionToken *string             `json:"session_token"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type ConversationRepository struct {
	client *supabase.Client
}

func NewConversationRepository(cfg Config) (*ConversationRepository, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &ConversationRepository{client: client}, nil
}

func (r *ConversationRepository) Create(_ context.Context, conv *entity.Conversation) error {
	var rows []conversationRow
	_, err := r.client.From(conversationsTable).
		Insert(toRow(conv), false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepository) Update(_ context.Context, conv *entity.Conversation) error {
	row := toRow(conv)
	changes := map[string]interface{}{
		"messages":      row.Messages,
		"selected_docs": row.SelectedDocs,
		"session_token": row.SessionToken,
		"updated_at":    row.UpdatedAt,
	}

	var rows []conversationRow
	_, err := r.client.From(conversationsTable).
		Update(changes, "representation", "").
		Eq("id", conv.Id.String()).
		Eq("user_id", conv.UserId.String()).
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if len(rows) == 0 {
		return contract.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) Delete(_ context.Context, userID, id uuid.UUID) error {
	var rows []conversationRow
	_, err := r.client.From(conversationsTable).
		Delete("representation", "").
		Eq("id", id.String()).
		Eq("user_id", userID.String()).
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if len(rows) == 0 {
		return contract.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) FindByID(_ context.Context, userID, id uuid.UUID) (*entity.Conversation, error) {
	var rows []conversationRow
	_, err := r.client.From(conversationsTable).
		Select("*", "", false).
		Eq("id", id.String()).
		Eq("user_id", userID.String()).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toEntity(), nil
}

func (r *ConversationRepository) FindAllByUser(_ context.Context, userID uuid.UUID) ([]*entity.Conversation, error) {
	var rows []conversationRow
	_, err := r.client.From(conversationsTable).
		Select("*", "", false).
		Eq("user_id", userID.String()).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	out := make([]*entity.Conversation, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toEntity())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func toRow(conv *entity.Conversation) conversationRow {
	row := conversationRow{
		Id:           conv.Id,
		UserId:       conv.UserId,
		Title:        conv.Title,
		Messages:     conv.Messages,
		SelectedDocs: conv.SelectedDocs,
		SessionToken: conv.SessionToken,
		CreatedAt:    conv.CreatedAt.UTC(),
		UpdatedAt:    conv.UpdatedAt.UTC(),
	}
	if row.Messages == nil {
		row.Messages = []entity.Message{}
	}
	if row.SelectedDocs == nil {
		row.SelectedDocs = []entity.DocumentID{}
	}
	return row
}

func (row conversationRow) toEntity() *entity.Conversation {
	return &entity.Conversation{
		Id:           row.Id,
		UserId:       row.UserId,
		Title:        row.Title,
		Messages:     row.Messages,
		SelectedDocs: row.SelectedDocs,
		SessionToken: row.SessionToken,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}
