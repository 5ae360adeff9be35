package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"kb-assistant-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil, logger.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func connect(t *testing.T, hub *Hub, userID uuid.UUID, buffer int) *Client {
	t.Helper()
	c := &Client{Hub: hub, UserID: userID, Send: make(chan []byte, buffer)}
	hub.register <- c
	require.Eventually(t, func() bool { return hub.Connected(userID) > 0 }, time.Second, 5*time.Millisecond)
	return c
}

func TestSendToUserReachesEveryDeviceOfThatUser(t *testing.T) {
	hub := startHub(t)
	alice, bob := uuid.New(), uuid.New()
	phone := connect(t, hub, alice, 4)
	laptop := connect(t, hub, alice, 4)
	other := connect(t, hub, bob, 4)
	require.Eventually(t, func() bool { return hub.Connected(alice) == 2 }, time.Second, 5*time.Millisecond)

	hub.SendToUser(alice, "chunk", map[string]interface{}{"index": 1, "chunk": "Hel"})

	for _, c := range []*Client{phone, laptop} {
		var env struct {
			Type string                 `json:"type"`
			Data map[string]interface{} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(<-c.Send, &env))
		assert.Equal(t, "chunk", env.Type)
		assert.Equal(t, "Hel", env.Data["chunk"])
	}
	assert.Empty(t, other.Send)
}

func TestFullBufferDropsConnection(t *testing.T) {
	hub := startHub(t)
	userID := uuid.New()
	c := connect(t, hub, userID, 1)

	hub.SendToUser(userID, "snapshot", "first")
	hub.SendToUser(userID, "snapshot", "second")

	require.Eventually(t, func() bool { return hub.Connected(userID) == 0 }, time.Second, 5*time.Millisecond)
	<-c.Send
	_, open := <-c.Send
	assert.False(t, open)
}

func TestInboundCommandsAreDispatched(t *testing.T) {
	hub := NewHub(nil, logger.NewNopLogger())
	userID := uuid.New()
	var got struct {
		user    uuid.UUID
		msgType string
		data    string
	}
	hub.OnInbound(func(u uuid.UUID, msgType string, data json.RawMessage) {
		got.user, got.msgType, got.data = u, msgType, string(data)
	})

	hub.handleInbound(userID, []byte(`{"type":"draft","data":{"text":"hi"}}`))
	hub.handleInbound(userID, []byte(`not json`))

	assert.Equal(t, userID, got.user)
	assert.Equal(t, "draft", got.msgType)
	assert.JSONEq(t, `{"text":"hi"}`, got.data)
}

func TestClusterPublishNeverBlocksSender(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = rdb.Close() })
	// not running: nothing drains the cluster backlog
	hub := NewHub(rdb, logger.NewNopLogger())
	userID := uuid.New()

	sent := make(chan struct{})
	go func() {
		for i := 0; i < clusterBacklog+10; i++ {
			hub.SendToUser(userID, "chunk", i)
		}
		close(sent)
	}()

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("SendToUser waited on Redis")
	}
	assert.Len(t, hub.outbox, clusterBacklog)

	var first clusterMessage
	require.NoError(t, json.Unmarshal(<-hub.outbox, &first))
	assert.Equal(t, userID.String(), first.TargetUserID)
	assert.Equal(t, hub.origin, first.Origin)
	assert.JSONEq(t, `{"type":"chunk","data":0}`, string(first.Message))
}
