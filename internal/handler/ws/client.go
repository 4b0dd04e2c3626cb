package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"wavelink-backend/pkg/constants"
	"wavelink-backend/pkg/logger"
)

const (
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Client is one live WebSocket connection owned by exactly one user
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	userID   uuid.UUID
	username string

	send      chan []byte
	closeOnce sync.Once

	// topics this client is subscribed to, guarded by hub.mu
	topics map[string]bool
}

func newClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, username string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		userID:   userID,
		username: username,
		send:     make(chan []byte, sendBufferSize),
		topics:   make(map[string]bool),
	}
}

// UserID returns the authenticated user that owns this connection
func (c *Client) UserID() uuid.UUID {
	return c.userID
}

// Send queues an encoded event directly on this connection, bypassing
// Pub/Sub. Used for request-scoped replies like acks and errors. Returns
// false when the client's buffer is full.
func (c *Client) Send(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// SendEvent encodes and queues an event on this connection
func (c *Client) SendEvent(event string, data interface{}) {
	payload, err := Encode(event, data)
	if err != nil {
		logger.Error("Failed to encode event",
			zap.String("event", event),
			zap.Error(err))
		return
	}
	if !c.Send(payload) {
		logger.Warn("Dropped event for slow connection",
			zap.String("event", event),
			zap.String("user_id", c.userID.String()))
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// readPump reads inbound frames and hands each decoded envelope to onEvent.
// It returns when the connection dies; the caller performs cleanup.
func (c *Client) readPump(onEvent func(c *Client, env *Envelope)) {
	pongWait := constants.WebSocketPingInterval + constants.WebSocketWriteTimeout

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("WebSocket read error",
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.SendEvent(constants.EventError, ErrorPayload{Message: "malformed event"})
			continue
		}
		if env.Event == "" {
			c.SendEvent(constants.EventError, ErrorPayload{Message: "missing event name"})
			continue
		}

		onEvent(c, &env)
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings. It owns all writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
