// Package service holds the redis-backed collaborators the hub talks to.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	onlineVisitorsKey = "livechat:online_visitors"
	eventsChannel     = "livechat:events"
	statusTTL         = 5 * time.Minute
)

// PresenceMirror mirrors visitor presence and chat events into redis.
// This is the seam a multi-process deployment would share; in a single
// process it feeds dashboards and keeps restarts honest. All methods are
// nil-safe so the hub runs unchanged without redis configured.
type PresenceMirror struct {
	client *redis.Client
}

// NewPresenceMirror wraps client, which may be nil to disable mirroring.
func NewPresenceMirror(client *redis.Client) *PresenceMirror {
	return &PresenceMirror{client: client}
}

// SetVisitorOnline records a visitor's live connection.
func (m *PresenceMirror) SetVisitorOnline(ctx context.Context, clientID string) {
	if m == nil || m.client == nil {
		return
	}
	pipe := m.client.Pipeline()
	pipe.SAdd(ctx, onlineVisitorsKey, clientID)
	pipe.HSet(ctx, fmt.Sprintf("livechat:visitor:%s:status", clientID), map[string]any{
		"status":    "online",
		"last_seen": time.Now().Unix(),
	})
	pipe.Expire(ctx, fmt.Sprintf("livechat:visitor:%s:status", clientID), statusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("failed to set visitor online", "clientId", clientID, "error", err)
	}
}

// SetVisitorOffline clears a visitor's live connection.
func (m *PresenceMirror) SetVisitorOffline(ctx context.Context, clientID string) {
	if m == nil || m.client == nil {
		return
	}
	pipe := m.client.Pipeline()
	pipe.SRem(ctx, onlineVisitorsKey, clientID)
	pipe.HSet(ctx, fmt.Sprintf("livechat:visitor:%s:status", clientID), map[string]any{
		"status":    "offline",
		"last_seen": time.Now().Unix(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("failed to set visitor offline", "clientId", clientID, "error", err)
	}
}

// OnlineVisitors returns the mirrored set of live visitor ids.
func (m *PresenceMirror) OnlineVisitors(ctx context.Context) ([]string, error) {
	if m == nil || m.client == nil {
		return nil, nil
	}
	return m.client.SMembers(ctx, onlineVisitorsKey).Result()
}

// PublishEvent pushes a chat event onto the shared pub/sub channel.
func (m *PresenceMirror) PublishEvent(ctx context.Context, event any) {
	if m == nil || m.client == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal chat event", "error", err)
		return
	}
	if err := m.client.Publish(ctx, eventsChannel, data).Err(); err != nil {
		slog.Error("failed to publish chat event", "error", err)
	}
}

// SubscribeEvents returns the pub/sub subscription for chat events, used
// by companion processes watching the same redis.
func (m *PresenceMirror) SubscribeEvents(ctx context.Context) *redis.PubSub {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Subscribe(ctx, eventsChannel)
}
