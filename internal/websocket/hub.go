// Package websocket contains the live-chat core: the connection
// registry, the hub (protocol state machine), and the presence tracker.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"livechat-service/internal/dedup"
	"livechat-service/internal/models"
	"livechat-service/internal/protocol"
	"livechat-service/internal/service"
	"livechat-service/internal/store"
)

const typingTTL = time.Second

// inboundFrame is one raw frame awaiting dispatch, paired with the
// connection it arrived on.
type inboundFrame struct {
	client *Client
	raw    []byte

	// ack, when set, marks a barrier instead of a frame; dispatch closes
	// it once every earlier event has been processed.
	ack chan struct{}
}

// typingKey identifies a typing indicator by thread and direction, so a
// visitor typing and an admin typing in the same thread expire
// independently.
type typingKey struct {
	clientID string
	toAdmins bool
}

// Hub is the chat router: a single goroutine interprets every inbound
// frame, mutates thread state, and fans outbound frames to the right
// connections. Because dispatch is single-threaded, per-sender ordering
// is receipt ordering and the dedup window needs no coordination beyond
// its own lock.
//
// Persistence submission and fan-out fire from the same event: a live
// admin can see a message slightly before it is durably recorded.
type Hub struct {
	registry *Registry
	tracker  *Tracker
	dedup    *dedup.Cache
	queue    *store.WriteQueue
	mirror   *service.PresenceMirror

	inbound   chan inboundFrame
	detach    chan *Client
	typingOff chan typingKey

	// typingTimers is touched only from the run loop.
	typingTimers map[typingKey]*time.Timer

	// seq is the per-process receipt counter, touched only from the run
	// loop; it breaks created-at ties within a thread.
	seq int64

	// internal stands in for HTTP fallback callers; its responses are
	// discarded.
	internal *Client

	ctx    context.Context
	cancel context.CancelFunc
}

// nopConn discards writes; it backs the internal HTTP-origin client.
type nopConn struct{}

func (nopConn) WriteMessage(int, []byte) error { return nil }
func (nopConn) Close() error                   { return nil }

// NewHub wires the router over a write queue and an optional redis
// mirror (nil disables mirroring).
func NewHub(queue *store.WriteQueue, mirror *service.PresenceMirror) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		registry:     NewRegistry(),
		tracker:      NewTracker(),
		dedup:        dedup.New(dedup.DefaultCapacity),
		queue:        queue,
		mirror:       mirror,
		inbound:      make(chan inboundFrame, 256),
		detach:       make(chan *Client, 64),
		typingOff:    make(chan typingKey, 64),
		typingTimers: make(map[typingKey]*time.Timer),
		ctx:          ctx,
		cancel:       cancel,
	}
	h.internal = NewClient(nopConn{}, models.RoleAdmin)
	h.internal.ID = "internal"
	go h.drainInternal()
	return h
}

// drainInternal throws away responses addressed to the HTTP-origin
// client so its buffer never fills.
func (h *Hub) drainInternal() {
	for range h.internal.Send {
	}
}

// Registry exposes the connection registry to the transport layer.
func (h *Hub) Registry() *Registry { return h.registry }

// Tracker exposes the presence view to the HTTP fallback surface.
func (h *Hub) Tracker() *Tracker { return h.tracker }

// Run dispatches events until Stop. One frame is processed to completion
// before the next; ordering across connections is per-sender only.
func (h *Hub) Run() {
	for {
		select {
		case in := <-h.inbound:
			if in.ack != nil {
				close(in.ack)
				continue
			}
			h.dispatch(in.client, in.raw)

		case c := <-h.detach:
			h.handleDetach(c)

		case key := <-h.typingOff:
			h.expireTyping(key)

		case <-h.ctx.Done():
			slog.Info("chat hub shutting down")
			return
		}
	}
}

// Stop halts dispatch. Pending writes still drain through the queue.
func (h *Hub) Stop() {
	h.cancel()
}

// HandleFrame queues one raw inbound frame from a connection.
func (h *Hub) HandleFrame(c *Client, raw []byte) {
	select {
	case h.inbound <- inboundFrame{client: c, raw: raw}:
	case <-h.ctx.Done():
	}
}

// Drain blocks until every frame queued before the call has been
// dispatched. Shutdown drains the hub before closing the write queue so
// in-flight frames still reach persistence.
func (h *Hub) Drain() {
	ack := make(chan struct{})
	select {
	case h.inbound <- inboundFrame{ack: ack}:
	case <-h.ctx.Done():
		return
	}
	select {
	case <-ack:
	case <-h.ctx.Done():
	}
}

// Detach queues the teardown of a closed connection.
func (h *Hub) Detach(c *Client) {
	select {
	case h.detach <- c:
	case <-h.ctx.Done():
	}
}

// SeedPresence warms the tracker from persisted threads, so the admin
// dashboard survives a restart.
func (h *Hub) SeedPresence(ctx context.Context) error {
	threads, err := h.queue.ListThreads(ctx, store.ListFilter{})
	if err != nil {
		return fmt.Errorf("seed presence: %w", err)
	}
	h.tracker.Seed(threads)
	return nil
}

func (h *Hub) dispatch(c *Client, raw []byte) {
	payload, err := protocol.Decode(raw)
	if err != nil {
		// A bad frame is logged and dropped; the connection stays open
		// and other connections are unaffected.
		slog.Warn("dropping malformed frame", "clientId", c.ID, "error", err)
		return
	}

	switch p := payload.(type) {
	case *protocol.Identify:
		h.handleIdentify(c, p)
	case *protocol.Chat:
		h.handleChat(c, p)
	case *protocol.AdminMessage:
		h.handleAdminMessage(c, p)
	case *protocol.Typing:
		h.handleTyping(c, p)
	case *protocol.GetHistory:
		h.handleGetHistory(c, p)
	case *protocol.GetActiveChats:
		h.handleGetActiveChats(c)
	case *protocol.DeleteChat:
		h.handleDeleteChat(c, p)
	case *protocol.ClientID, *protocol.History, *protocol.ActiveChats,
		*protocol.ChatDeleted, *protocol.MessageStatus, *protocol.System,
		*protocol.AdminNotice:
		// Server-originated kinds are never valid inbound.
		slog.Warn("dropping server-originated frame from peer", "clientId", c.ID, "type", payload.FrameType())
	}
}

func (h *Hub) handleIdentify(c *Client, p *protocol.Identify) {
	if p.Name != "" {
		c.DisplayName = p.Name
	}

	// The endpoint the peer connected through fixes the role; isAdmin in
	// the frame cannot escalate a visitor connection.
	if c.Role == models.RoleAdmin {
		if c.ID == "" {
			c.ID = "admin-" + uuid.NewString()
		}
		h.registry.Register(c)
		slog.Info("admin connected", "connId", c.ID, "name", c.DisplayName)
		return
	}

	if p.ClientID != "" {
		c.ID = p.ClientID
	}
	if c.ID == "" {
		c.ID = "visitor-" + uuid.NewString()
	}

	if stale := h.registry.Register(c); stale != nil {
		// Last write wins: the previous connection for this visitor is
		// stale and gets closed.
		slog.Info("superseding visitor connection", "clientId", c.ID)
		stale.Close()
	}

	h.sendTo(c, &protocol.ClientID{ClientID: c.ID})
	h.mirror.SetVisitorOnline(h.ctx, c.ID)
	slog.Info("visitor connected", "clientId", c.ID, "name", c.DisplayName)
}

func (h *Hub) handleChat(c *Client, p *protocol.Chat) {
	clientID := p.ClientID
	if clientID == "" {
		clientID = c.ID
	}
	if clientID == "" {
		slog.Warn("chat frame with no client identity, dropping")
		return
	}

	// A chat before identify binds the connection implicitly.
	if c.Role == models.RoleVisitor && c.ID == "" {
		c.ID = clientID
		if stale := h.registry.Register(c); stale != nil {
			stale.Close()
		}
		h.mirror.SetVisitorOnline(h.ctx, clientID)
	}

	if h.dedup.SeenOrRemember(p.ID) {
		slog.Debug("suppressing replayed chat frame", "messageId", p.ID)
		return
	}

	name := p.Name
	if name == "" {
		name = c.DisplayName
	}

	createdAt := parseTimestamp(p.Timestamp)
	admins := h.registry.AllAdmins()

	status := models.DeliverySent
	if len(admins) > 0 {
		status = models.DeliveryDelivered
	}

	h.seq++
	msg := models.ChatMessage{
		ID:             p.ID,
		ClientID:       clientID,
		SenderRole:     models.RoleVisitor,
		Text:           p.Message,
		CreatedAt:      createdAt,
		DeliveryStatus: status,
		Seq:            h.seq,
	}

	// Durable append and live fan-out fire from the same event; neither
	// waits for the other.
	h.queue.SubmitAppend(clientID, models.ClientInfo{Name: name}, msg)

	out := &protocol.Chat{
		ClientID:  clientID,
		Message:   p.Message,
		ID:        p.ID,
		Timestamp: createdAt.Format(time.RFC3339Nano),
		Name:      name,
	}
	h.broadcastAdmins(out)

	h.tracker.OnMessage(clientID, name, p.Message, createdAt, models.RoleVisitor)
	h.mirror.PublishEvent(h.ctx, chatEvent{Kind: "chat", ClientID: clientID, MessageID: p.ID, At: createdAt})
}

func (h *Hub) handleAdminMessage(c *Client, p *protocol.AdminMessage) {
	if c.Role != models.RoleAdmin {
		slog.Warn("visitor attempted admin_message, dropping", "clientId", c.ID)
		return
	}

	if h.dedup.SeenOrRemember(p.ID) {
		slog.Debug("suppressing replayed admin_message frame", "messageId", p.ID)
		return
	}

	createdAt := parseTimestamp(p.Timestamp)
	visitor := h.registry.FindVisitor(p.TargetClientID)

	// Offline-message semantics: no live visitor is not a failure; the
	// message persists and surfaces on the next history fetch.
	status := models.DeliverySent
	if visitor != nil {
		status = models.DeliveryDelivered
	}

	h.seq++
	msg := models.ChatMessage{
		ID:             p.ID,
		ClientID:       p.TargetClientID,
		SenderRole:     models.RoleAdmin,
		Text:           p.Message,
		CreatedAt:      createdAt,
		DeliveryStatus: status,
		Seq:            h.seq,
	}
	h.queue.SubmitAppend(p.TargetClientID, models.ClientInfo{}, msg)

	if visitor != nil {
		h.sendTo(visitor, &protocol.AdminMessage{
			TargetClientID: p.TargetClientID,
			Message:        p.Message,
			ID:             p.ID,
			Timestamp:      createdAt.Format(time.RFC3339Nano),
		})
	}

	h.sendTo(c, &protocol.MessageStatus{ID: p.ID, Status: status})

	h.tracker.OnMessage(p.TargetClientID, "", p.Message, createdAt, models.RoleAdmin)
	h.mirror.PublishEvent(h.ctx, chatEvent{Kind: "admin_message", ClientID: p.TargetClientID, MessageID: p.ID, At: createdAt})
}

func (h *Hub) handleTyping(c *Client, p *protocol.Typing) {
	var key typingKey
	if c.Role == models.RoleVisitor {
		if c.ID == "" {
			return
		}
		key = typingKey{clientID: c.ID, toAdmins: true}
	} else {
		if p.TargetClientID == "" {
			return
		}
		key = typingKey{clientID: p.TargetClientID, toAdmins: false}
	}

	h.forwardTyping(key, p.Typing)

	if timer, ok := h.typingTimers[key]; ok {
		timer.Stop()
		delete(h.typingTimers, key)
	}
	if p.Typing {
		// Self-expire so a lost "stopped typing" frame cannot leave a
		// stuck indicator.
		h.typingTimers[key] = time.AfterFunc(typingTTL, func() {
			select {
			case h.typingOff <- key:
			case <-h.ctx.Done():
			}
		})
	}
}

func (h *Hub) expireTyping(key typingKey) {
	delete(h.typingTimers, key)
	h.forwardTyping(key, false)
}

func (h *Hub) forwardTyping(key typingKey, typing bool) {
	out := &protocol.Typing{TargetClientID: key.clientID, Typing: typing}
	if key.toAdmins {
		h.broadcastAdmins(out)
		return
	}
	if visitor := h.registry.FindVisitor(key.clientID); visitor != nil {
		h.sendTo(visitor, out)
	}
}

func (h *Hub) handleGetHistory(c *Client, p *protocol.GetHistory) {
	clientID := p.ClientID
	if c.Role == models.RoleVisitor {
		// Visitors only ever see their own thread.
		clientID = c.ID
	}
	if clientID == "" {
		return
	}

	messages := []models.ChatMessage{}
	thread, err := h.queue.GetThread(h.ctx, clientID)
	switch {
	case err == nil:
		messages = thread.Messages
	case err == store.ErrThreadNotFound:
		// Unknown client yields an empty history, not an error.
	default:
		slog.Error("history read failed", "clientId", clientID, "error", err)
	}

	h.sendTo(c, &protocol.History{ClientID: clientID, Messages: messages})

	if c.Role == models.RoleAdmin {
		// Opening a thread clears its unread flag.
		h.tracker.Open(clientID)
	} else if len(messages) > 0 {
		// The visitor has now seen every admin message in the thread.
		h.queue.SubmitAdvanceDelivery(clientID, models.RoleAdmin, models.DeliveryRead)
	}
}

func (h *Hub) handleGetActiveChats(c *Client) {
	if c.Role != models.RoleAdmin {
		slog.Warn("visitor attempted get_active_chats, dropping", "clientId", c.ID)
		return
	}
	h.sendTo(c, &protocol.ActiveChats{Chats: h.tracker.List()})
}

func (h *Hub) handleDeleteChat(c *Client, p *protocol.DeleteChat) {
	if c.Role != models.RoleAdmin {
		slog.Warn("visitor attempted delete_chat, dropping", "clientId", c.ID)
		return
	}

	h.queue.SubmitDelete(p.ClientID)
	h.tracker.Remove(p.ClientID)
	h.broadcastAdmins(&protocol.ChatDeleted{ClientID: p.ClientID, Success: true})
	slog.Info("chat deleted", "clientId", p.ClientID)
}

func (h *Hub) handleDetach(c *Client) {
	removed := h.registry.Unregister(c)

	for key, timer := range h.typingTimers {
		if key.clientID == c.ID {
			timer.Stop()
			delete(h.typingTimers, key)
		}
	}

	if removed && c.Role == models.RoleVisitor && c.ID != "" {
		h.mirror.SetVisitorOffline(h.ctx, c.ID)
	}
	c.Close()
}

func (h *Hub) sendTo(c *Client, payload protocol.Payload) {
	data, err := protocol.Encode(payload)
	if err != nil {
		slog.Error("frame encode failed", "type", payload.FrameType(), "error", err)
		return
	}
	c.Enqueue(data)
}

func (h *Hub) broadcastAdmins(payload protocol.Payload) {
	data, err := protocol.Encode(payload)
	if err != nil {
		slog.Error("frame encode failed", "type", payload.FrameType(), "error", err)
		return
	}
	for _, admin := range h.registry.AllAdmins() {
		admin.Enqueue(data)
	}
}

// chatEvent is what the mirror publishes for each routed message.
type chatEvent struct {
	Kind      string    `json:"kind"`
	ClientID  string    `json:"clientId"`
	MessageID string    `json:"messageId"`
	At        time.Time `json:"at"`
}

func parseTimestamp(ts string) time.Time {
	if ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
