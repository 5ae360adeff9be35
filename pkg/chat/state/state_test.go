package state

import (
	"testing"

	"kb-assistant-be/internal/constant"
	"kb-assistant-be/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecordingSession() (*Session, *[]Snapshot) {
	s := New()
	var snaps []Snapshot
	s.OnMessagesChanged = func(snap Snapshot) {
		snaps = append(snaps, snap)
	}
	return s, &snaps
}

func TestAppendUserMessageClearsDraftAndFollowUps(t *testing.T) {
	s, snaps := newRecordingSession()
	s.SetDraft("What is X?")
	s.SetFollowUps([]string{"old hint"})

	s.AppendUserMessage("What is X?")

	assert.Equal(t, []entity.Message{{Role: entity.RoleUser, Content: "What is X?"}}, s.Messages)
	assert.Empty(t, s.Draft)
	assert.Empty(t, s.FollowUps)
	assert.Len(t, *snaps, 1)
}

func TestStreamChunksFillPlaceholder(t *testing.T) {
	s, snaps := newRecordingSession()
	s.AppendUserMessage("q")
	gen := s.StartAssistantPlaceholder()

	assert.True(t, s.AppendChunk(gen, "Hel"))
	assert.True(t, s.AppendChunk(gen, "lo"))
	assert.Len(t, *snaps, 2, "chunks must not trigger the change hook")

	token := "sess-1"
	require.True(t, s.CompleteAssistant(gen, "Hello", &token))

	assert.Equal(t, "Hello", s.Messages[1].Content)
	require.NotNil(t, s.SessionToken)
	assert.Equal(t, "sess-1", *s.SessionToken)
	assert.False(t, s.HasPlaceholder())
	assert.Len(t, *snaps, 3)
}

func TestCompleteKeepsTokenWhenNoneReturned(t *testing.T) {
	s := New()
	token := "keep-me"
	s.SessionToken = &token
	s.AppendUserMessage("q")
	gen := s.StartAssistantPlaceholder()

	empty := ""
	require.True(t, s.CompleteAssistant(gen, "answer", &empty))

	assert.Equal(t, "keep-me", *s.SessionToken)
}

func TestStaleGenerationIsIgnored(t *testing.T) {
	s := New()
	s.AppendUserMessage("first")
	stale := s.StartAssistantPlaceholder()
	s.Abandon()

	s.AppendUserMessage("second")
	current := s.StartAssistantPlaceholder()

	assert.False(t, s.AppendChunk(stale, "late"))
	assert.False(t, s.CompleteAssistant(stale, "late", nil))
	assert.True(t, s.AppendChunk(current, "fresh"))

	assert.Equal(t, constant.AssistantCancelledReply, s.Messages[1].Content)
	assert.Equal(t, "fresh", s.Messages[3].Content)
}

func TestAbandonKeepsPartialText(t *testing.T) {
	s := New()
	s.AppendUserMessage("q")
	gen := s.StartAssistantPlaceholder()
	s.AppendChunk(gen, "partial")
	s.SetBusy(true)

	s.Abandon()

	assert.Equal(t, "partial", s.Messages[1].Content)
	assert.False(t, s.Busy)
	assert.False(t, s.HasPlaceholder())
}

func TestFailAssistantRecordsReason(t *testing.T) {
	s := New()
	s.AppendUserMessage("q")
	gen := s.StartAssistantPlaceholder()

	require.True(t, s.FailAssistant(gen, "upstream returned 500"))

	assert.Equal(t, constant.AssistantErrorPrefix+"upstream returned 500", s.Messages[1].Content)
	assert.Equal(t, entity.RoleAssistant, s.Messages[1].Role)
}

func TestEditMessage(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		wantErr error
	}{
		{name: "user message", index: 0},
		{name: "assistant message", index: 1, wantErr: ErrNotUserMessage},
		{name: "negative index", index: -1, wantErr: ErrMessageIndex},
		{name: "past the end", index: 2, wantErr: ErrMessageIndex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.AppendUserMessage("q")
			gen := s.StartAssistantPlaceholder()
			s.CompleteAssistant(gen, "a", nil)

			err := s.EditMessage(tt.index, "edited")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, "q", s.Messages[0].Content)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "edited", s.Messages[0].Content)
			assert.Equal(t, "a", s.Messages[1].Content)
		})
	}
}

func TestDeleteMessageShiftsIndexes(t *testing.T) {
	s := New()
	s.AppendUserMessage("q1")
	s.AppendUserMessage("q2")
	s.AppendUserMessage("q3")
	s.SetHovered(2)
	require.NoError(t, s.StartEditing(1))

	require.NoError(t, s.DeleteMessage(0))

	assert.Len(t, s.Messages, 2)
	assert.Equal(t, 1, s.HoveredIndex)
	assert.Equal(t, 0, s.EditingIndex)

	require.NoError(t, s.DeleteMessage(0))
	assert.Equal(t, -1, s.EditingIndex)
	assert.Empty(t, s.EditingText)
}

func TestDeleteBeforePlaceholderKeepsStreamTarget(t *testing.T) {
	s := New()
	s.AppendUserMessage("q1")
	gen := s.StartAssistantPlaceholder()
	assert.Equal(t, 1, s.PlaceholderIndex())

	require.NoError(t, s.DeleteMessage(0))
	assert.Equal(t, 0, s.PlaceholderIndex())
	require.True(t, s.AppendChunk(gen, "still here"))

	assert.Equal(t, "still here", s.Messages[0].Content)

	require.True(t, s.CompleteAssistant(gen, "done", nil))
	assert.Equal(t, -1, s.PlaceholderIndex())
}

func TestEditingBuffer(t *testing.T) {
	s, snaps := newRecordingSession()
	s.AppendUserMessage("orig")

	require.NoError(t, s.StartEditing(0))
	assert.Equal(t, "orig", s.EditingText)
	require.NoError(t, s.SetEditingText("changed"))
	require.NoError(t, s.SaveEditing())

	assert.Equal(t, "changed", s.Messages[0].Content)
	assert.Equal(t, -1, s.EditingIndex)
	assert.Len(t, *snaps, 2)

	assert.ErrorIs(t, s.SaveEditing(), ErrNotEditing)

	require.NoError(t, s.StartEditing(0))
	s.CancelEditing()
	assert.Equal(t, "changed", s.Messages[0].Content)
}

func TestResetKeepsSelection(t *testing.T) {
	s := New()
	s.Selection.Refresh([]entity.DocumentRef{{Id: "d1"}, {Id: "d2"}})
	s.AssignConversationID(uuid.New())
	s.AppendUserMessage("q")

	s.Reset()

	assert.Nil(t, s.ConversationID)
	assert.Empty(t, s.Messages)
	assert.Nil(t, s.SessionToken)
	assert.Equal(t, []entity.DocumentID{"d1", "d2"}, s.Selection.Selected())
}

func TestLoadRestoresConversation(t *testing.T) {
	s, snaps := newRecordingSession()
	s.Selection.Refresh([]entity.DocumentRef{{Id: "d1"}, {Id: "d2"}})
	s.SetFollowUps([]string{"hint"})
	token := "tok"
	conv := &entity.Conversation{
		Id:           uuid.New(),
		Messages:     []entity.Message{{Role: entity.RoleUser, Content: "q"}, {Role: entity.RoleAssistant, Content: "a"}},
		SelectedDocs: []entity.DocumentID{"d2", "deleted"},
		SessionToken: &token,
	}

	s.Load(conv)

	require.NotNil(t, s.ConversationID)
	assert.Equal(t, conv.Id, *s.ConversationID)
	assert.Equal(t, conv.Messages, s.Messages)
	assert.Equal(t, []entity.DocumentID{"d2"}, s.Selection.Selected())
	assert.Equal(t, "tok", *s.SessionToken)
	assert.Empty(t, s.FollowUps)
	assert.Empty(t, *snaps)

	// the loaded copy is independent of the record
	conv.Messages[0].Content = "mutated"
	assert.Equal(t, "q", s.Messages[0].Content)
}

func TestSnapshotConversation(t *testing.T) {
	s := New()
	s.Selection.Refresh([]entity.DocumentRef{{Id: "d1"}})
	s.AppendUserMessage("q")
	userID := uuid.New()

	unsaved := s.Snapshot().Conversation(userID)
	assert.Equal(t, uuid.Nil, unsaved.Id)
	assert.Equal(t, userID, unsaved.UserId)
	assert.Equal(t, []entity.DocumentID{"d1"}, unsaved.SelectedDocs)

	id := uuid.New()
	s.AssignConversationID(id)
	assert.Equal(t, id, s.Snapshot().Conversation(userID).Id)
}
