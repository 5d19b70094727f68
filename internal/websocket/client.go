package websocket

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"livechat-service/internal/models"
)

const sendBufferSize = 64

// Client is one live connection in the registry: a visitor widget or an
// admin console tab. Identity is bound by the identify frame; until then
// the client is connected but anonymous.
type Client struct {
	ID          string
	Role        models.SenderRole
	DisplayName string

	Conn Conn
	Send chan []byte

	closeOnce sync.Once
}

// NewClient wraps a transport connection. role comes from the endpoint
// the peer connected through; identify refines the name and client id.
func NewClient(conn Conn, role models.SenderRole) *Client {
	return &Client{
		Role: role,
		Conn: conn,
		Send: make(chan []byte, sendBufferSize),
	}
}

// WritePump drains the send buffer onto the transport. Runs as one
// goroutine per connection; exits when Close is called.
func (c *Client) WritePump() {
	defer c.Conn.Close()
	for data := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Debug("client write failed", "clientId", c.ID, "error", err)
			return
		}
	}
}

// Enqueue hands an outbound frame to the write pump without blocking the
// hub. A client that cannot keep up loses frames rather than stalling
// dispatch for everyone else.
func (c *Client) Enqueue(data []byte) {
	select {
	case c.Send <- data:
	default:
		slog.Warn("client send buffer full, dropping frame", "clientId", c.ID, "role", c.Role)
	}
}

// Close shuts the send pump and the transport. Safe to call more than
// once; supersession and unregister can race onto the same connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.Send)
		c.Conn.Close()
	})
}
