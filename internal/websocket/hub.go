package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"kb-assistant-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	clusterChannel = "cluster_events"
	// cluster publishes waiting for Redis; more are dropped
	clusterBacklog = 256
	publishTimeout = 2 * time.Second
)

// Envelope is the frame pushed to clients.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// InboundFunc handles a command sent by a client over its socket.
type InboundFunc func(userID uuid.UUID, msgType string, data json.RawMessage)

type clusterMessage struct {
	TargetUserID string          `json:"target_user_id"`
	Origin       string          `json:"origin"`
	Message      json.RawMessage `json:"message"`
}

type Hub struct {
	// UserID -> connections (multi-device)
	clients map[uuid.UUID][]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	// Redis connection for cross-instance delivery; nil runs single-instance
	rdb *redis.Client
	// instance id, so our own cluster messages are not delivered twice
	origin string
	outbox chan []byte

	inbound InboundFunc
	logger  logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uuid.UUID][]*Client),
		rdb:        rdb,
		origin:     uuid.NewString(),
		outbox:     make(chan []byte, clusterBacklog),
		logger:     log,
	}
}

// OnInbound installs the handler of client commands. Call before Run.
func (h *Hub) OnInbound(fn InboundFunc) {
	h.inbound = fn
}

func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
		go h.publishToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"user_id": client.UserID})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

// SendToUser pushes one event to every connection of the user, here and on
// the other instances. It never blocks: a connection whose buffer is full is
// dropped, and the Redis publish happens on its own goroutine.
func (h *Hub) SendToUser(userID uuid.UUID, eventType string, data interface{}) {
	message, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		h.logger.Error("Hub", "Failed to encode event", map[string]interface{}{
			"type":  eventType,
			"error": err.Error(),
		})
		return
	}

	h.deliver(userID, message)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{
			TargetUserID: userID.String(),
			Origin:       h.origin,
			Message:      message,
		})
		select {
		case h.outbox <- payload:
		default:
			h.logger.Warn("Hub", "Cluster backlog full, dropping event", map[string]interface{}{
				"user_id": userID,
				"type":    eventType,
			})
		}
	}
}

// Connected reports how many sockets of the user are open on this instance.
func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) deliver(userID uuid.UUID, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients[userID] {
		select {
		case client.Send <- message:
		default:
			h.logger.Warn("Hub", "Client Send buffer full, dropping connection", map[string]interface{}{"user_id": userID})
			go h.drop(client)
		}
	}
}

func (h *Hub) drop(client *Client) {
	h.unregister <- client
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.UserID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.UserID]) == 0 {
		delete(h.clients, client.UserID)
		h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"user_id": client.UserID})
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, clients := range h.clients {
		for _, c := range clients {
			close(c.Send)
		}
		delete(h.clients, userID)
	}
}

func (h *Hub) handleInbound(userID uuid.UUID, raw []byte) {
	if h.inbound == nil {
		return
	}
	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		h.logger.Debug("Hub", "Ignoring malformed client message", map[string]interface{}{"user_id": userID})
		return
	}
	h.inbound(userID, msg.Type, msg.Data)
}

func (h *Hub) publishToRedis(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-h.outbox:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := h.rdb.Publish(pubCtx, clusterChannel, payload).Err()
			cancel()
			if err != nil {
				h.logger.Warn("Hub", "Failed to publish cluster event", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn("Hub", "Cluster message parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			if payload.Origin == h.origin {
				continue
			}

			uid, err := uuid.Parse(payload.TargetUserID)
			if err != nil {
				continue
			}
			h.deliver(uid, payload.Message)
		}
	}
}
