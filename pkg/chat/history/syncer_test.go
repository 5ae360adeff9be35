package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"kb-assistant-be/internal/constant"
	"kb-assistant-be/internal/entity"
	"kb-assistant-be/internal/pkg/logger"
	"kb-assistant-be/internal/repository/contract"
	"kb-assistant-be/internal/repository/memory"
	"kb-assistant-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return nil
}

type failingRepository struct {
	*memory.ConversationRepository
	err error
}

func (r *failingRepository) Create(context.Context, *entity.Conversation) error {
	return r.err
}

func newTestSyncer(repo contract.ConversationRepository) (*Syncer, *fakeClock, *recordingPublisher) {
	clock := &fakeClock{now: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)}
	pub := &recordingPublisher{}
	return NewSyncer(repo, pub, logger.NewNopLogger(), WithClock(clock.Now)), clock, pub
}

func exchange(question, answer string) []entity.Message {
	return []entity.Message{
		{Role: entity.RoleUser, Content: question},
		{Role: entity.RoleAssistant, Content: answer},
	}
}

func TestSaveCreatesRecordOnFirstSave(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewConversationRepository()
	syncer, clock, pub := newTestSyncer(repo)
	userID := uuid.New()

	id, err := syncer.Save(ctx, userID, &entity.Conversation{
		Messages:     exchange("What is X?", "X is..."),
		SelectedDocs: []entity.DocumentID{"d1"},
	})

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	stored, err := syncer.Get(ctx, userID, id)
	require.NoError(t, err)
	assert.Equal(t, "What is X?", stored.Title)
	assert.Len(t, stored.Messages, 2)
	assert.Equal(t, clock.now, stored.CreatedAt)
	assert.Equal(t, clock.now, stored.UpdatedAt)

	require.Len(t, pub.events, 1)
	assert.Equal(t, constant.EventConversationSaved, pub.events[0].EventType())
	assert.Equal(t, true, pub.events[0].Payload()["created"])
}

func TestSaveTwiceUpdatesOnlyUpdatedAt(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewConversationRepository()
	syncer, clock, _ := newTestSyncer(repo)
	userID := uuid.New()
	conv := &entity.Conversation{Messages: exchange("q", "a")}

	id, err := syncer.Save(ctx, userID, conv)
	require.NoError(t, err)
	created := clock.now

	clock.Advance(time.Minute)
	conv.Id = id
	again, err := syncer.Save(ctx, userID, conv)
	require.NoError(t, err)

	assert.Equal(t, id, again)
	assert.Equal(t, 1, repo.Len())
	stored, err := syncer.Get(ctx, userID, id)
	require.NoError(t, err)
	assert.Equal(t, created, stored.CreatedAt)
	assert.Equal(t, created.Add(time.Minute), stored.UpdatedAt)
}

func TestSaveNeverRecomputesTitle(t *testing.T) {
	ctx := context.Background()
	syncer, _, _ := newTestSyncer(memory.NewConversationRepository())
	userID := uuid.New()
	conv := &entity.Conversation{Messages: exchange("original question", "a")}

	id, err := syncer.Save(ctx, userID, conv)
	require.NoError(t, err)

	conv.Id = id
	conv.Messages[0].Content = "edited question"
	_, err = syncer.Save(ctx, userID, conv)
	require.NoError(t, err)

	stored, err := syncer.Get(ctx, userID, id)
	require.NoError(t, err)
	assert.Equal(t, "original question", stored.Title)
	assert.Equal(t, "edited question", stored.Messages[0].Content)
}

func TestSaveRecreatesRecordDeletedElsewhere(t *testing.T) {
	ctx := context.Background()
	syncer, _, _ := newTestSyncer(memory.NewConversationRepository())
	userID := uuid.New()
	known := uuid.New()

	id, err := syncer.Save(ctx, userID, &entity.Conversation{Id: known, Messages: exchange("q", "a")})

	require.NoError(t, err)
	assert.Equal(t, known, id)
}

func TestSaveSkipsEmptyConversation(t *testing.T) {
	repo := memory.NewConversationRepository()
	syncer, _, pub := newTestSyncer(repo)

	id, err := syncer.Save(context.Background(), uuid.New(), &entity.Conversation{})

	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)
	assert.Equal(t, 0, repo.Len())
	assert.Empty(t, pub.events)
}

func TestSaveIsScopedToUser(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewConversationRepository()
	syncer, _, _ := newTestSyncer(repo)
	owner, intruder := uuid.New(), uuid.New()

	id, err := syncer.Save(ctx, owner, &entity.Conversation{Messages: exchange("mine", "a")})
	require.NoError(t, err)

	// another user saving under the same id must not touch the owner's record
	_, err = syncer.Save(ctx, intruder, &entity.Conversation{Id: id, Messages: exchange("theirs", "b")})
	assert.Error(t, err)

	stored, err := syncer.Get(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, "mine", stored.Messages[0].Content)

	_, err = syncer.Get(ctx, intruder, id)
	assert.ErrorIs(t, err, contract.ErrConversationNotFound)
}

func TestSaveReportsStoreFailure(t *testing.T) {
	boom := errors.New("store offline")
	repo := &failingRepository{ConversationRepository: memory.NewConversationRepository(), err: boom}
	syncer, _, pub := newTestSyncer(repo)

	_, err := syncer.Save(context.Background(), uuid.New(), &entity.Conversation{Messages: exchange("q", "a")})

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, pub.events)
}

func TestDeleteRemovesFromHistory(t *testing.T) {
	ctx := context.Background()
	syncer, clock, pub := newTestSyncer(memory.NewConversationRepository())
	userID := uuid.New()

	keep, err := syncer.Save(ctx, userID, &entity.Conversation{Messages: exchange("keep", "a")})
	require.NoError(t, err)
	gone, err := syncer.Save(ctx, userID, &entity.Conversation{Messages: exchange("gone", "a")})
	require.NoError(t, err)

	require.NoError(t, syncer.Delete(ctx, userID, gone))

	groups, err := syncer.History(ctx, userID, "", clock.now)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Conversations, 1)
	assert.Equal(t, keep, groups[0].Conversations[0].Id)
	assert.Equal(t, constant.EventConversationDeleted, pub.events[len(pub.events)-1].EventType())

	assert.ErrorIs(t, syncer.Delete(ctx, userID, gone), contract.ErrConversationNotFound)
}

func TestLoadAllNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewConversationRepository()
	syncer, clock, _ := newTestSyncer(repo)
	userID := uuid.New()

	first, err := syncer.Save(ctx, userID, &entity.Conversation{Messages: exchange("first", "a")})
	require.NoError(t, err)
	clock.Advance(time.Hour)
	second, err := syncer.Save(ctx, userID, &entity.Conversation{Messages: exchange("second", "a")})
	require.NoError(t, err)

	// a fresh syncer has no cached listing
	fresh, _, _ := newTestSyncer(repo)
	all, err := fresh.LoadAll(ctx, userID)

	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second, all[0].Id)
	assert.Equal(t, first, all[1].Id)
}

func TestHistoryLoadsWhenNotCached(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewConversationRepository()
	writer, clock, _ := newTestSyncer(repo)
	userID := uuid.New()
	_, err := writer.Save(ctx, userID, &entity.Conversation{Messages: exchange("Budget review", "a")})
	require.NoError(t, err)

	reader, _, _ := newTestSyncer(repo)
	groups, err := reader.History(ctx, userID, "budget", clock.now)

	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, BucketToday, groups[0].Key)
}
