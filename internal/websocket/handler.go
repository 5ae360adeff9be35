package websocket

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs registers the connection with the hub and pumps it until it closes.
// onOpen runs once the connection is registered, e.g. to push an initial
// snapshot.
func ServeWs(hub *Hub, c *websocket.Conn, userID uuid.UUID, onOpen func()) {
	client := &Client{Hub: hub, Conn: c, UserID: userID, Send: make(chan []byte, sendBuffer)}
	client.Hub.register <- client

	go client.writePump()
	if onOpen != nil {
		onOpen()
	}
	client.readPump()
}
