package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"kb-assistant-be/internal/constant"
	"kb-assistant-be/internal/dto"
	"kb-assistant-be/internal/entity"
	"kb-assistant-be/internal/pkg/logger"
	"kb-assistant-be/internal/repository/memory"
	"kb-assistant-be/pkg/answer"
	"kb-assistant-be/pkg/chat/followup"
	"kb-assistant-be/pkg/chat/history"
	"kb-assistant-be/pkg/chat/orchestrator"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenRecordingAnswers struct {
	mu     sync.Mutex
	tokens []string
}

func (a *tokenRecordingAnswers) Ask(_ context.Context, token string, req answer.Request) (*answer.Response, error) {
	a.mu.Lock()
	a.tokens = append(a.tokens, token)
	a.mu.Unlock()
	return &answer.Response{Answer: "Answer to " + req.Question}, nil
}

func (a *tokenRecordingAnswers) Stream(context.Context, string, answer.Request) (orchestrator.AnswerStream, error) {
	return nil, errors.New("not streaming")
}

type staticDocuments struct {
	lists int
}

func (d *staticDocuments) List(context.Context, string) ([]entity.DocumentRef, error) {
	d.lists++
	return []entity.DocumentRef{{Id: "d1", Filename: "handbook.pdf"}}, nil
}

func (d *staticDocuments) Upload(context.Context, string, string, io.Reader) (entity.DocumentRef, error) {
	return entity.DocumentRef{}, errors.New("read only")
}

func (d *staticDocuments) Delete(context.Context, string, entity.DocumentID) error {
	return nil
}

type sentEvent struct {
	userID    uuid.UUID
	eventType string
}

type recordingEvents struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (r *recordingEvents) SendToUser(userID uuid.UUID, eventType string, _ interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEvent{userID: userID, eventType: eventType})
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.sent {
		out = append(out, e.eventType)
	}
	return out
}

type debugEntry struct {
	message string
	details map[string]interface{}
}

// debugRecorder keeps Debug entries and drops everything else.
type debugRecorder struct {
	logger.ILogger
	mu      sync.Mutex
	entries []debugEntry
}

func (r *debugRecorder) Debug(_, message string, details map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, debugEntry{message: message, details: details})
}

func (r *debugRecorder) find(message string) (debugEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.message == message {
			return e, true
		}
	}
	return debugEntry{}, false
}

type serviceFixture struct {
	svc     IChatService
	answers *tokenRecordingAnswers
	docs    *staticDocuments
	events  *recordingEvents
	repo    *memory.ConversationRepository
	log     *debugRecorder
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		answers: &tokenRecordingAnswers{},
		docs:    &staticDocuments{},
		events:  &recordingEvents{},
		repo:    memory.NewConversationRepository(),
		log:     &debugRecorder{ILogger: logger.NewNopLogger()},
	}
	syncer := history.NewSyncer(f.repo, nil, logger.NewNopLogger())
	f.svc = NewChatService(f.answers, f.docs, syncer, followup.NewStatic(), f.events, ChatServiceConfig{
		AnswerTimeout:  time.Second,
		SessionIdleTTL: time.Hour,
		Location:       time.UTC,
	}, f.log)
	return f
}

func TestSessionRequiresToken(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.GetSession(context.Background(), uuid.New(), "")
	assert.ErrorIs(t, err, orchestrator.ErrMissingCredential)
}

func TestSessionIsCreatedOnceAndTokenRotates(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := uuid.New()

	res, err := f.svc.GetSession(ctx, user, "token-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, res.SelectedDocs)
	assert.Equal(t, 1, f.docs.lists)

	_, err = f.svc.SendMessage(ctx, user, "token-2", &dto.SendMessageRequest{Question: "What is X?"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.docs.lists, "an existing session is not initialised again")
	assert.Equal(t, []string{"token-2"}, f.answers.tokens)
}

func TestSendMessagePushesSocketEvents(t *testing.T) {
	f := newServiceFixture(t)
	user := uuid.New()

	res, err := f.svc.SendMessage(context.Background(), user, "token", &dto.SendMessageRequest{Question: "What is X?"})
	require.NoError(t, err)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "Answer to What is X?", res.Messages[1].Content)

	assert.Contains(t, f.events.types(), constant.WsEventSnapshot)
	for _, e := range f.events.sent {
		assert.Equal(t, user, e.userID)
	}
}

func TestSocketCommandsOnlyTouchExistingSessions(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := uuid.New()

	f.svc.HandleSocketCommand(user, "draft", json.RawMessage(`{"text":"hello"}`))
	assert.Zero(t, f.docs.lists, "a socket command must not create a session")

	_, err := f.svc.GetSession(ctx, user, "token")
	require.NoError(t, err)

	f.svc.HandleSocketCommand(user, "draft", json.RawMessage(`{"text":"hello"}`))
	f.svc.HandleSocketCommand(user, "hover", json.RawMessage(`{"index":0}`))
	f.svc.HandleSocketCommand(user, "draft", json.RawMessage(`not json`))

	res, err := f.svc.GetSession(ctx, user, "token")
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Draft)
	assert.Equal(t, 0, res.HoveredIndex)
}

func TestEndSessionKeepsHistory(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := uuid.New()

	_, err := f.svc.SendMessage(ctx, user, "token", &dto.SendMessageRequest{Question: "What is X?"})
	require.NoError(t, err)

	f.svc.EndSession(user)

	res, err := f.svc.GetSession(ctx, user, "token")
	require.NoError(t, err)
	assert.Empty(t, res.Messages)
	assert.Nil(t, res.ConversationId)

	groups, err := f.svc.GetHistory(ctx, user, "token", "")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Conversations, 1)
	assert.Equal(t, "What is X?", groups[0].Conversations[0].Title)
}

func TestUpdateUIStateEditing(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := uuid.New()

	_, err := f.svc.SendMessage(ctx, user, "token", &dto.SendMessageRequest{Question: "What is X?"})
	require.NoError(t, err)

	zero := 0
	text := "What is Y?"
	res, err := f.svc.UpdateUIState(ctx, user, "token", &dto.UpdateUIStateRequest{EditingIndex: &zero, EditingText: &text})
	require.NoError(t, err)
	assert.Equal(t, 0, res.EditingIndex)
	assert.Equal(t, text, res.EditingText)

	res, err = f.svc.SaveEditing(ctx, user, "token", &dto.SaveEditingRequest{})
	require.NoError(t, err)
	assert.Equal(t, text, res.Messages[0].Content)
	assert.Equal(t, -1, res.EditingIndex)

	one := 1
	_, err = f.svc.UpdateUIState(ctx, user, "token", &dto.UpdateUIStateRequest{EditingIndex: &one})
	assert.ErrorIs(t, err, orchestrator.ErrNotUserMessage)
}

func TestEditingTextCommandOutsideEditingIsLogged(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	user := uuid.New()

	_, err := f.svc.GetSession(ctx, user, "token")
	require.NoError(t, err)

	f.svc.HandleSocketCommand(user, "editing_text", json.RawMessage(`{"text":"draft edit"}`))

	entry, ok := f.log.find("Ignoring editing text")
	require.True(t, ok)
	assert.Equal(t, user, entry.details["user_id"])
	assert.Equal(t, orchestrator.ErrNotEditing.Error(), entry.details["error"])

	res, err := f.svc.GetSession(ctx, user, "token")
	require.NoError(t, err)
	assert.Empty(t, res.EditingText)
}
