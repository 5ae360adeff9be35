// Package state holds the authoritative in-memory conversation of a session.
package state

import (
	"errors"

	"kb-assistant-be/internal/constant"
	"kb-assistant-be/internal/entity"
	"kb-assistant-be/pkg/chat/selection"

	"github.com/google/uuid"
)

var (
	ErrMessageIndex    = errors.New("message index out of range")
	ErrNotUserMessage  = errors.New("only user messages can be edited")
	ErrNotEditing      = errors.New("no message is being edited")
	ErrEmptyEditedText = errors.New("edited message cannot be empty")
)

const noIndex = -1

// Snapshot is a deep copy of the session, safe to hand to other goroutines.
type Snapshot struct {
	ConversationID *uuid.UUID
	Messages       []entity.Message
	SelectedDocs   []entity.DocumentID
	Documents      []entity.DocumentRef
	SessionToken   *string
	Draft          string
	Busy           bool
	FollowUps      []string
	HoveredIndex   int
	EditingIndex   int
	EditingText    string
}

// Session is the live working copy of a conversation. It is not safe for
// concurrent use: the orchestrator owns it and serializes every call.
//
// ConversationID == nil means the conversation has never been persisted.
type Session struct {
	ConversationID *uuid.UUID
	Messages       []entity.Message
	Selection      *selection.Set
	SessionToken   *string
	Draft          string
	Busy           bool
	FollowUps      []string

	HoveredIndex int
	EditingIndex int
	EditingText  string

	// OnMessagesChanged runs synchronously after every message-list change
	// (append, edit, delete, completion). Stream chunks do not trigger it.
	OnMessagesChanged func(Snapshot)

	generation  uint64
	placeholder int
}

func New() *Session {
	return &Session{
		Selection:    selection.New(),
		HoveredIndex: noIndex,
		EditingIndex: noIndex,
		placeholder:  noIndex,
	}
}

// Generation identifies the current exchange. Anything started under an older
// generation is stale and must not touch the session.
func (s *Session) Generation() uint64 {
	return s.generation
}

func (s *Session) HasPlaceholder() bool {
	return s.placeholder != noIndex
}

// PlaceholderIndex is the current position of the open assistant
// placeholder, or -1.
func (s *Session) PlaceholderIndex() int {
	return s.placeholder
}

// AppendUserMessage appends a user turn, clears the draft and stale hints.
func (s *Session) AppendUserMessage(text string) {
	s.Messages = append(s.Messages, entity.Message{Role: entity.RoleUser, Content: text})
	s.Draft = ""
	s.FollowUps = nil
	s.notify()
}

// StartAssistantPlaceholder appends the empty assistant turn that the answer
// will fill, and opens a new generation for it.
func (s *Session) StartAssistantPlaceholder() uint64 {
	s.generation++
	s.Messages = append(s.Messages, entity.Message{Role: entity.RoleAssistant})
	s.placeholder = len(s.Messages) - 1
	s.notify()
	return s.generation
}

// AppendChunk adds streamed text to the placeholder of generation gen.
// It reports false, without mutating anything, when gen is stale.
func (s *Session) AppendChunk(gen uint64, chunk string) bool {
	if !s.current(gen) {
		return false
	}
	s.Messages[s.placeholder].Content += chunk
	return true
}

// CompleteAssistant replaces the placeholder content and adopts a returned
// continuation token. A nil or empty token keeps the previous one.
func (s *Session) CompleteAssistant(gen uint64, content string, newToken *string) bool {
	if !s.current(gen) {
		return false
	}
	s.Messages[s.placeholder].Content = content
	if newToken != nil && *newToken != "" {
		token := *newToken
		s.SessionToken = &token
	}
	s.placeholder = noIndex
	s.notify()
	return true
}

// FailAssistant records the failure reason as the assistant turn.
func (s *Session) FailAssistant(gen uint64, reason string) bool {
	if reason == "" {
		reason = constant.AssistantErrorFallback
	}
	return s.CompleteAssistant(gen, constant.AssistantErrorPrefix+reason, nil)
}

// Abandon invalidates the current exchange. A placeholder that received no
// text is marked as cancelled; partial text is kept.
func (s *Session) Abandon() {
	if s.placeholder != noIndex {
		if s.Messages[s.placeholder].Content == "" {
			s.Messages[s.placeholder].Content = constant.AssistantCancelledReply
		}
		s.placeholder = noIndex
		s.generation++
		s.Busy = false
		s.notify()
		return
	}
	s.generation++
	s.Busy = false
}

// EditMessage rewrites a user turn in place. Later replies are left alone.
func (s *Session) EditMessage(index int, content string) error {
	if index < 0 || index >= len(s.Messages) {
		return ErrMessageIndex
	}
	if s.Messages[index].Role != entity.RoleUser {
		return ErrNotUserMessage
	}
	s.Messages[index].Content = content
	s.notify()
	return nil
}

// DeleteMessage removes one turn. Request/response pairing is not repaired.
func (s *Session) DeleteMessage(index int) error {
	if index < 0 || index >= len(s.Messages) {
		return ErrMessageIndex
	}
	s.Messages = append(s.Messages[:index], s.Messages[index+1:]...)

	s.placeholder = shiftAfterDelete(s.placeholder, index)
	s.HoveredIndex = shiftAfterDelete(s.HoveredIndex, index)
	if s.EditingIndex == index {
		s.EditingIndex = noIndex
		s.EditingText = ""
	} else {
		s.EditingIndex = shiftAfterDelete(s.EditingIndex, index)
	}

	s.notify()
	return nil
}

func (s *Session) SetBusy(busy bool) {
	s.Busy = busy
}

func (s *Session) SetDraft(text string) {
	s.Draft = text
}

func (s *Session) SetFollowUps(hints []string) {
	s.FollowUps = append([]string(nil), hints...)
}

func (s *Session) SetHovered(index int) {
	if index < 0 || index >= len(s.Messages) {
		s.HoveredIndex = noIndex
		return
	}
	s.HoveredIndex = index
}

func (s *Session) StartEditing(index int) error {
	if index < 0 || index >= len(s.Messages) {
		return ErrMessageIndex
	}
	if s.Messages[index].Role != entity.RoleUser {
		return ErrNotUserMessage
	}
	s.EditingIndex = index
	s.EditingText = s.Messages[index].Content
	return nil
}

func (s *Session) SetEditingText(text string) error {
	if s.EditingIndex == noIndex {
		return ErrNotEditing
	}
	s.EditingText = text
	return nil
}

// SaveEditing commits the edit buffer through EditMessage.
func (s *Session) SaveEditing() error {
	if s.EditingIndex == noIndex {
		return ErrNotEditing
	}
	if s.EditingText == "" {
		return ErrEmptyEditedText
	}
	index, text := s.EditingIndex, s.EditingText
	s.EditingIndex = noIndex
	s.EditingText = ""
	return s.EditMessage(index, text)
}

func (s *Session) CancelEditing() {
	s.EditingIndex = noIndex
	s.EditingText = ""
}

// AssignConversationID adopts the id minted by the first successful save.
func (s *Session) AssignConversationID(id uuid.UUID) {
	if id == uuid.Nil {
		return
	}
	s.ConversationID = &id
}

// Reset starts a fresh, unsaved conversation. The document selection is kept.
func (s *Session) Reset() {
	s.ConversationID = nil
	s.Messages = nil
	s.SessionToken = nil
	s.Draft = ""
	s.FollowUps = nil
	s.resetUI()
	s.invalidate()
}

// Load replaces the working copy with a saved conversation. Loading is not a
// message change and does not trigger OnMessagesChanged.
func (s *Session) Load(conv *entity.Conversation) {
	id := conv.Id
	s.ConversationID = &id
	s.Messages = entity.CloneMessages(conv.Messages)
	s.SessionToken = nil
	if conv.SessionToken != nil {
		token := *conv.SessionToken
		s.SessionToken = &token
	}
	s.Selection.Restore(conv.SelectedDocs)
	s.FollowUps = nil
	s.resetUI()
	s.invalidate()
}

func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Messages:     entity.CloneMessages(s.Messages),
		SelectedDocs: s.Selection.Selected(),
		Documents:    s.Selection.Documents(),
		Draft:        s.Draft,
		Busy:         s.Busy,
		FollowUps:    append([]string(nil), s.FollowUps...),
		HoveredIndex: s.HoveredIndex,
		EditingIndex: s.EditingIndex,
		EditingText:  s.EditingText,
	}
	if s.ConversationID != nil {
		id := *s.ConversationID
		snap.ConversationID = &id
	}
	if s.SessionToken != nil {
		token := *s.SessionToken
		snap.SessionToken = &token
	}
	return snap
}

// Conversation converts the working copy into a record for persistence.
// The id is uuid.Nil while the session is unsaved.
func (snap Snapshot) Conversation(userID uuid.UUID) *entity.Conversation {
	conv := &entity.Conversation{
		UserId:       userID,
		Messages:     entity.CloneMessages(snap.Messages),
		SelectedDocs: append([]entity.DocumentID{}, snap.SelectedDocs...),
		SessionToken: snap.SessionToken,
	}
	if snap.ConversationID != nil {
		conv.Id = *snap.ConversationID
	}
	return conv
}

func (s *Session) current(gen uint64) bool {
	return gen == s.generation && s.placeholder != noIndex
}

func (s *Session) invalidate() {
	s.generation++
	s.placeholder = noIndex
	s.Busy = false
}

func (s *Session) resetUI() {
	s.HoveredIndex = noIndex
	s.EditingIndex = noIndex
	s.EditingText = ""
}

func (s *Session) notify() {
	if s.OnMessagesChanged != nil {
		s.OnMessagesChanged(s.Snapshot())
	}
}

func shiftAfterDelete(i, deleted int) int {
	switch {
	case i == noIndex:
		return noIndex
	case i == deleted:
		return noIndex
	case i > deleted:
		return i - 1
	default:
		return i
	}
}
