package websocket

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"livechat-service/internal/models"
	"livechat-service/internal/protocol"
	"livechat-service/internal/store"
)

// The methods here back the HTTP fallback surface. Mutations are routed
// through the hub loop as synthetic frames from the internal client, so
// HTTP replies share the exact dedup/persistence/fan-out semantics of
// the websocket path.

// ActiveChats returns the current admin dashboard summaries.
func (h *Hub) ActiveChats() []models.ActiveChatSummary {
	return h.tracker.List()
}

// History returns a thread's messages, newest-limit-bounded when
// limit > 0. An unknown clientId yields an empty slice.
func (h *Hub) History(ctx context.Context, clientID string, limit int) ([]models.ChatMessage, error) {
	thread, err := h.queue.GetThread(ctx, clientID)
	if err == store.ErrThreadNotFound {
		return []models.ChatMessage{}, nil
	}
	if err != nil {
		return nil, err
	}

	messages := thread.Messages
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// AdminReply routes an operator reply submitted over HTTP and returns
// the generated message id. Delivery is best-effort like every routed
// frame; the caller gets no durability guarantee.
func (h *Hub) AdminReply(clientID, message string) (string, error) {
	id := NewMessageID()
	raw, err := protocol.Encode(&protocol.AdminMessage{
		TargetClientID: clientID,
		Message:        message,
		ID:             id,
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	h.HandleFrame(h.internal, raw)
	return id, nil
}

// DeleteChat routes a thread deletion submitted over HTTP.
func (h *Hub) DeleteChat(clientID string) error {
	raw, err := protocol.Encode(&protocol.DeleteChat{ClientID: clientID})
	if err != nil {
		return err
	}
	h.HandleFrame(h.internal, raw)
	return nil
}

// NewMessageID mints a message id in the wire format msg-<timestamp>-<random>.
func NewMessageID() string {
	return fmt.Sprintf("msg-%d-%06d", time.Now().UnixMilli(), rand.Intn(1000000))
}
