package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"

	"livechat-service/internal/models"
	"livechat-service/internal/websocket"
)

var upgrader = gws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The widget is embedded on customer sites; origin policy lives in CORS
	// config, not the handshake.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	hub *websocket.Hub
}

func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleVisitor upgrades a widget connection. Visitors carry no
// credentials; identity is established by the identify frame.
func (h *WSHandler) HandleVisitor(c *gin.Context) {
	h.serve(c, models.RoleVisitor)
}

// HandleAdmin upgrades an operator console connection. WSAuth has
// already validated the token by the time this runs.
func (h *WSHandler) HandleAdmin(c *gin.Context) {
	h.serve(c, models.RoleAdmin)
}

func (h *WSHandler) serve(c *gin.Context, role models.SenderRole) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "role", role, "error", err)
		return
	}

	client := websocket.NewClient(conn, role)
	go client.WritePump()
	go h.readPump(client, conn)
}

func (h *WSHandler) readPump(client *websocket.Client, conn *gws.Conn) {
	defer h.hub.Detach(client)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if gws.IsUnexpectedCloseError(err, gws.CloseGoingAway, gws.CloseNormalClosure) {
				slog.Warn("websocket read failed", "role", client.Role, "error", err)
			}
			return
		}
		h.hub.HandleFrame(client, raw)
	}
}
