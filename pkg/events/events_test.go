package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"kb-assistant-be/internal/constant"
	"kb-assistant-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.events = append(p.events, e)
	return p.err
}

func TestMarshalRoundTripKeepsType(t *testing.T) {
	userID, convID := uuid.New(), uuid.New()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	raw, err := Marshal(ConversationSaved(userID, convID, "What is X?", true, at))
	require.NoError(t, err)
	got, err := Unmarshal(raw)
	require.NoError(t, err)

	assert.Equal(t, constant.EventConversationSaved, got.EventType())
	assert.True(t, at.Equal(got.Timestamp()))
	assert.Equal(t, "What is X?", got.Payload()["title"])

	owner, ok := UserID(got)
	assert.True(t, ok)
	assert.Equal(t, userID, owner)
}

func TestUserIDMissing(t *testing.T) {
	_, ok := UserID(BaseEvent{Data: map[string]interface{}{}})
	assert.False(t, ok)
}

func TestLocalBusDeliversToSubscriber(t *testing.T) {
	bus := NewLocalBus(logger.NewNopLogger())
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Event, 1)
	require.NoError(t, bus.Subscribe(ctx, func(e Event) { received <- e }))

	convID := uuid.New()
	require.NoError(t, bus.Publish(ctx, ConversationDeleted(uuid.New(), convID, time.Now())))

	select {
	case e := <-received:
		assert.Equal(t, constant.EventConversationDeleted, e.EventType())
		assert.Equal(t, convID.String(), e.Payload()["conversation_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestFanoutPublishesToAll(t *testing.T) {
	boom := errors.New("broker down")
	first := &recordingPublisher{err: boom}
	second := &recordingPublisher{}

	err := Fanout{first, nil, second}.Publish(context.Background(), BaseEvent{Type: "X"})

	assert.ErrorIs(t, err, boom)
	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
}
