package mapper

import (
	"kb-assistant-be/internal/dto"
	"kb-assistant-be/internal/entity"
	"kb-assistant-be/pkg/chat/history"
	"kb-assistant-be/pkg/chat/orchestrator"
)

type ChatMapper struct{}

func NewChatMapper() *ChatMapper {
	return &ChatMapper{}
}

func (m *ChatMapper) SessionToResponse(view orchestrator.View) *dto.SessionResponse {
	messages := make([]*dto.MessageResponse, 0, len(view.Messages))
	for _, msg := range view.Messages {
		messages = append(messages, &dto.MessageResponse{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	followUps := view.FollowUps
	if followUps == nil {
		followUps = []string{}
	}

	return &dto.SessionResponse{
		ConversationId: view.ConversationID,
		Messages:       messages,
		SelectedDocs:   m.documentIDs(view.SelectedDocs),
		Documents:      m.DocumentsToResponse(view.Documents, view.SelectedDocs),
		HasSession:     view.SessionToken != nil,
		Draft:          view.Draft,
		Busy:           view.Busy,
		Phase:          view.Phase.String(),
		FollowUps:      followUps,
		HoveredIndex:   view.HoveredIndex,
		EditingIndex:   view.EditingIndex,
		EditingText:    view.EditingText,
		LastError:      view.LastError,
	}
}

func (m *ChatMapper) DocumentListToResponse(view orchestrator.View) *dto.DocumentListResponse {
	return &dto.DocumentListResponse{
		Documents:    m.DocumentsToResponse(view.Documents, view.SelectedDocs),
		SelectedDocs: m.documentIDs(view.SelectedDocs),
	}
}

func (m *ChatMapper) DocumentsToResponse(docs []entity.DocumentRef, selected []entity.DocumentID) []*dto.DocumentResponse {
	chosen := make(map[entity.DocumentID]bool, len(selected))
	for _, id := range selected {
		chosen[id] = true
	}

	out := make([]*dto.DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, m.DocumentToResponse(d, chosen[d.Id]))
	}
	return out
}

func (m *ChatMapper) DocumentToResponse(d entity.DocumentRef, selected bool) *dto.DocumentResponse {
	res := &dto.DocumentResponse{
		Id:       d.Id.String(),
		Filename: d.Filename,
		Selected: selected,
	}
	if !d.CreatedAt.IsZero() {
		created := d.CreatedAt
		res.CreatedAt = &created
	}
	return res
}

func (m *ChatMapper) HistoryToResponse(groups []history.Group) []*dto.HistoryGroupResponse {
	out := make([]*dto.HistoryGroupResponse, 0, len(groups))
	for _, g := range groups {
		convs := make([]*dto.ConversationSummaryResponse, 0, len(g.Conversations))
		for _, c := range g.Conversations {
			convs = append(convs, &dto.ConversationSummaryResponse{
				Id:           c.Id,
				Title:        c.Title,
				MessageCount: len(c.Messages),
				CreatedAt:    c.CreatedAt,
				UpdatedAt:    c.UpdatedAt,
			})
		}
		out = append(out, &dto.HistoryGroupResponse{
			Key:           string(g.Key),
			Label:         g.Label,
			Conversations: convs,
		})
	}
	return out
}

func (m *ChatMapper) documentIDs(ids []entity.DocumentID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
