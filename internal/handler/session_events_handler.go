package handler

import (
	"context"

	"kb-assistant-be/internal/constant"
	"kb-assistant-be/internal/pkg/logger"
	"kb-assistant-be/internal/pkg/serverutils"
	"kb-assistant-be/internal/service"
	internalWS "kb-assistant-be/internal/websocket"
	"kb-assistant-be/pkg/events"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// SessionEventsHandler serves the per-user event socket: streamed chunks,
// session snapshots and history change notices.
type SessionEventsHandler struct {
	service   service.IChatService
	hub       *internalWS.Hub
	jwtSecret string
	logger    logger.ILogger
}

func NewSessionEventsHandler(service service.IChatService, hub *internalWS.Hub, jwtSecret string, log logger.ILogger) *SessionEventsHandler {
	hub.OnInbound(service.HandleSocketCommand)
	return &SessionEventsHandler{
		service:   service,
		hub:       hub,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

// ServeWs authenticates the handshake and upgrades the connection. Browsers
// pass the token as the "token" query parameter; other clients may use the
// Authorization header.
func (h *SessionEventsHandler) ServeWs(c *fiber.Ctx) error {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		tokenStr = serverutils.BearerToken(c)
	}
	if tokenStr == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Missing token (Query 'token' or Header 'Authorization')"))
	}

	userID, err := serverutils.ParseToken(h.jwtSecret, tokenStr)
	if err != nil {
		h.logger.Warn("SessionEventsHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("SessionEventsHandler", "Starting WebSocket session", map[string]interface{}{"user_id": userID})
		internalWS.ServeWs(h.hub, conn, userID, func() {
			// the initial snapshot also creates the session if needed
			snapshot, err := h.service.GetSession(context.Background(), userID, tokenStr)
			if err != nil {
				h.logger.Warn("SessionEventsHandler", "Failed to load session", map[string]interface{}{
					"user_id": userID,
					"error":   err.Error(),
				})
				return
			}
			h.hub.SendToUser(userID, constant.WsEventSnapshot, snapshot)
		})
		h.logger.Info("SessionEventsHandler", "WebSocket session ended", map[string]interface{}{"user_id": userID})
	})(c)
}

// ForwardHistoryEvent tells the owner's sockets that the history list changed.
func (h *SessionEventsHandler) ForwardHistoryEvent(e events.Event) {
	userID, ok := events.UserID(e)
	if !ok {
		return
	}
	h.hub.SendToUser(userID, constant.WsEventHistoryChanged, map[string]interface{}{
		"event":       e.EventType(),
		"payload":     e.Payload(),
		"occurred_at": e.Timestamp(),
	})
}

func (h *SessionEventsHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/chat/v1/ws", h.ServeWs)
}
