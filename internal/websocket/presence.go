package websocket

import (
	"sort"
	"sync"
	"time"

	"livechat-service/internal/models"
)

const previewLength = 80

// Tracker maintains the admin-facing "active chats" view: one summary
// per thread with unread flag, last-message preview, and recency. It is
// a cache over thread state, never persisted, rebuilt from message
// events and seedable from the store after a restart.
type Tracker struct {
	mu        sync.RWMutex
	summaries map[string]*models.ActiveChatSummary

	// openThread is the thread the admin console currently has selected;
	// messages landing there are not flagged unread.
	openThread string
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{summaries: make(map[string]*models.ActiveChatSummary)}
}

// OnMessage merges one message event into the view. Visitor messages
// flag the thread unread unless the admin has it open; admin replies
// never do.
func (t *Tracker) OnMessage(clientID, name, text string, at time.Time, from models.SenderRole) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.summaries[clientID]
	if !ok {
		s = &models.ActiveChatSummary{ClientID: clientID}
		t.summaries[clientID] = s
	}
	if name != "" {
		s.Name = name
	}
	s.LastMessagePreview = preview(text)
	s.LastActivityAt = at
	if from == models.RoleVisitor && clientID != t.openThread {
		s.Unread = true
	}
}

// Open records the thread the admin selected and clears its unread flag.
// This is an explicit console action, not part of OnMessage.
func (t *Tracker) Open(clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.openThread = clientID
	if s, ok := t.summaries[clientID]; ok {
		s.Unread = false
	}
}

// Remove drops a thread from the view after deletion.
func (t *Tracker) Remove(clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.summaries, clientID)
	if t.openThread == clientID {
		t.openThread = ""
	}
}

// List returns the summaries sorted descending by last activity.
func (t *Tracker) List() []models.ActiveChatSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.ActiveChatSummary, 0, len(t.summaries))
	for _, s := range t.summaries {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out
}

// Seed warms the view from persisted threads so the dashboard is
// populated right after a restart. Seeded threads start read: unread is
// a live-session signal, not recoverable state.
func (t *Tracker) Seed(threads []models.ChatThread) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range threads {
		thread := &threads[i]
		s := &models.ActiveChatSummary{
			ClientID:       thread.ClientID,
			Name:           thread.ClientInfo.Name,
			LastActivityAt: thread.UpdatedAt,
		}
		if last := thread.LastMessage(); last != nil {
			s.LastMessagePreview = preview(last.Text)
		}
		t.summaries[thread.ClientID] = s
	}
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "…"
}
