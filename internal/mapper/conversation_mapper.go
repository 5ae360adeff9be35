package mapper

import (
	"encoding/json"
	"fmt"

	"kb-assistant-be/internal/entity"
	"kb-assistant-be/internal/model"

	"gorm.io/datatypes"
)

type ConversationMapper struct{}

func NewConversationMapper() *ConversationMapper {
	return &ConversationMapper{}
}

func (m *ConversationMapper) ToEntity(c *model.Conversation) (*entity.Conversation, error) {
	if c == nil {
		return nil, nil
	}

	var messages []entity.Message
	if len(c.Messages) > 0 {
		if err := json.Unmarshal(c.Messages, &messages); err != nil {
			return nil, fmt.Errorf("decode messages of conversation %s: %w", c.Id, err)
		}
	}

	var docs []entity.DocumentID
	if len(c.SelectedDocs) > 0 {
		if err := json.Unmarshal(c.SelectedDocs, &docs); err != nil {
			return nil, fmt.Errorf("decode selected docs of conversation %s: %w", c.Id, err)
		}
	}

	return &entity.Conversation{
		Id:           c.Id,
		UserId:       c.UserId,
		Title:        c.Title,
		Messages:     messages,
		SelectedDocs: docs,
		SessionToken: c.SessionToken,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}, nil
}

func (m *ConversationMapper) ToModel(c *entity.Conversation) (*model.Conversation, error) {
	if c == nil {
		return nil, nil
	}

	messages, err := encodeList(c.Messages)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	docs, err := encodeList(c.SelectedDocs)
	if err != nil {
		return nil, fmt.Errorf("encode selected docs: %w", err)
	}

	return &model.Conversation{
		Id:           c.Id,
		UserId:       c.UserId,
		Title:        c.Title,
		Messages:     messages,
		SelectedDocs: docs,
		SessionToken: c.SessionToken,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}, nil
}

func (m *ConversationMapper) ToEntities(models []*model.Conversation) ([]*entity.Conversation, error) {
	out := make([]*entity.Conversation, 0, len(models))
	for _, c := range models {
		e, err := m.ToEntity(c)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// encodeList stores nil slices as [] so the jsonb columns are never null.
func encodeList[T any](items []T) (datatypes.JSON, error) {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
