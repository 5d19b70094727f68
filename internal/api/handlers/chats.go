package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"livechat-service/internal/websocket"
	"livechat-service/pkg/response"
)

// ChatHandler is the HTTP fallback for consoles that cannot hold a
// websocket open. Every mutation delegates to the hub so both surfaces
// share one dispatch path.
type ChatHandler struct {
	hub *websocket.Hub
}

func NewChatHandler(hub *websocket.Hub) *ChatHandler {
	return &ChatHandler{hub: hub}
}

// GetActiveChats returns the dashboard summaries, most recent first.
func (h *ChatHandler) GetActiveChats(c *gin.Context) {
	response.JSON(c, response.CodeSuccess, gin.H{"chats": h.hub.ActiveChats()})
}

// GetChatHistory returns a thread's messages. An unknown clientId is an
// empty history, not an error.
func (h *ChatHandler) GetChatHistory(c *gin.Context) {
	clientID := c.Param("clientId")
	if clientID == "" {
		response.Error(c, response.CodeParamInvalid, "clientId is required")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.Error(c, response.CodeParamInvalid, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	messages, err := h.hub.History(c.Request.Context(), clientID, limit)
	if err != nil {
		response.Error(c, response.CodeInternal, "failed to load history")
		return
	}
	response.JSON(c, response.CodeSuccess, gin.H{"clientId": clientID, "messages": messages})
}

type replyRequest struct {
	ClientID string `json:"clientId" binding:"required"`
	Message  string `json:"message" binding:"required"`
}

// PostReply routes an operator reply through the hub, exactly as if it
// had arrived as an admin_message frame.
func (h *ChatHandler) PostReply(c *gin.Context) {
	var req replyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, response.CodeParamInvalid, "clientId and message are required")
		return
	}

	id, err := h.hub.AdminReply(req.ClientID, req.Message)
	if err != nil {
		response.Error(c, response.CodeInternal, "failed to route reply")
		return
	}
	response.JSON(c, response.CodeSuccess, gin.H{"id": id})
}

// DeleteChat removes a thread and its history.
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	clientID := c.Param("clientId")
	if clientID == "" {
		response.Error(c, response.CodeParamInvalid, "clientId is required")
		return
	}

	if err := h.hub.DeleteChat(clientID); err != nil {
		response.Error(c, response.CodeInternal, "failed to delete chat")
		return
	}
	response.JSON(c, response.CodeSuccess, gin.H{"clientId": clientID})
}
