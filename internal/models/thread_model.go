package models

import (
	"time"
)

/** --------------------ENTITIES-------------------- */

// SenderRole identifies which side of a conversation authored a message.
type SenderRole string

const (
	RoleVisitor SenderRole = "visitor"
	RoleAdmin   SenderRole = "admin"
)

// DeliveryStatus tracks how far an admin message has progressed toward the
// visitor. It only ever moves forward: sent -> delivered -> read.
type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
)

func (s DeliveryStatus) rank() int {
	switch s {
	case DeliverySent:
		return 1
	case DeliveryDelivered:
		return 2
	case DeliveryRead:
		return 3
	}
	return 0
}

// Advance returns the later of the two statuses, so a status can never
// regress no matter what order updates arrive in.
func (s DeliveryStatus) Advance(next DeliveryStatus) DeliveryStatus {
	if next.rank() > s.rank() {
		return next
	}
	return s
}

// ThreadStatus is the lifecycle state of a conversation thread.
type ThreadStatus string

const (
	ThreadActive   ThreadStatus = "active"
	ThreadResolved ThreadStatus = "resolved"
)

// ChatMessage is one message in a thread. Immutable once created except
// for DeliveryStatus, which advances forward only.
type ChatMessage struct {
	ID             string         `gorm:"primaryKey" json:"id" bson:"id"`
	ClientID       string         `gorm:"index;not null" json:"clientId" bson:"clientId"`
	SenderRole     SenderRole     `gorm:"not null" json:"senderRole" bson:"senderRole"`
	Text           string         `gorm:"not null" json:"text" bson:"text"`
	CreatedAt      time.Time      `json:"createdAt" bson:"createdAt"`
	DeliveryStatus DeliveryStatus `gorm:"not null;default:sent" json:"deliveryStatus" bson:"deliveryStatus"`
	// Seq preserves server receipt order within a thread; created_at alone
	// cannot break ties for messages arriving in the same millisecond.
	Seq int64 `gorm:"index" json:"-" bson:"seq"`
}

// ClientInfo is the denormalized visitor metadata attached to a thread.
type ClientInfo struct {
	Name  string `json:"name" bson:"name"`
	Email string `json:"email,omitempty" bson:"email,omitempty"`
}

// ChatThread is the persisted conversation for one visitor clientId.
// Messages are append-only; slice order is chronological order.
type ChatThread struct {
	ClientID   string        `gorm:"primaryKey" json:"clientId" bson:"clientId"`
	ClientInfo ClientInfo    `gorm:"embedded;embeddedPrefix:client_" json:"clientInfo" bson:"clientInfo"`
	Messages   []ChatMessage `gorm:"foreignKey:ClientID;references:ClientID;constraint:OnDelete:CASCADE" json:"messages" bson:"messages"`
	Status     ThreadStatus  `gorm:"not null;default:active" json:"status" bson:"status"`
	CreatedAt  time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// IsGhost reports whether a thread carries no content worth persisting.
// Ghost threads must never be written and are purged when found.
func (t *ChatThread) IsGhost() bool {
	return len(t.Messages) == 0 && t.ClientInfo.Name == "" && t.ClientInfo.Email == ""
}

// LastMessage returns the newest message in the thread, or nil if empty.
func (t *ChatThread) LastMessage() *ChatMessage {
	if len(t.Messages) == 0 {
		return nil
	}
	return &t.Messages[len(t.Messages)-1]
}

/** -------------------- DTOs -------------------- */

// ActiveChatSummary is the admin dashboard view of one thread. It is a
// cache over ChatThread state and is never persisted.
type ActiveChatSummary struct {
	ClientID           string    `json:"clientId"`
	Name               string    `json:"name"`
	LastMessagePreview string    `json:"lastMessagePreview"`
	LastActivityAt     time.Time `json:"lastActivityAt"`
	Unread             bool      `json:"unread"`
}
