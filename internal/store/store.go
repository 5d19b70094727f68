// Package store is the persistence gateway for chat threads. One
// ThreadStore contract fronts the interchangeable storage engines
// (relational, document, file-backed); the WriteQueue serializes every
// mutation through a single writer regardless of engine.
package store

import (
	"context"
	"errors"

	"livechat-service/internal/models"
)

// ErrThreadNotFound is returned when an operation references a clientId
// with no persisted thread.
var ErrThreadNotFound = errors.New("thread not found")

// ListFilter narrows ListThreads. The zero value matches everything.
type ListFilter struct {
	Status models.ThreadStatus
}

// ThreadStore is the contract every storage engine implements. Reads may
// be issued concurrently; mutations are expected to arrive serialized
// through the WriteQueue.
type ThreadStore interface {
	// AppendMessage appends msg to the thread owned by clientID, creating
	// the thread on first message. Non-empty fields of info refresh the
	// thread's denormalized client metadata. A resolved thread reopens.
	AppendMessage(ctx context.Context, clientID string, info models.ClientInfo, msg models.ChatMessage) error

	// GetThread returns the full thread with messages in chronological
	// order, or ErrThreadNotFound.
	GetThread(ctx context.Context, clientID string) (*models.ChatThread, error)

	// ListThreads returns threads matching filter, newest activity first.
	// Ghost threads found along the way are purged, not returned.
	ListThreads(ctx context.Context, filter ListFilter) ([]models.ChatThread, error)

	// SetStatus transitions the thread's lifecycle status.
	SetStatus(ctx context.Context, clientID string, status models.ThreadStatus) error

	// AdvanceDelivery moves every message from sender in the thread up to
	// status. Statuses only ever move forward; lower targets are no-ops.
	AdvanceDelivery(ctx context.Context, clientID string, sender models.SenderRole, status models.DeliveryStatus) error

	// DeleteThread removes the thread and all its messages.
	DeleteThread(ctx context.Context, clientID string) error
}

// statusesBelow returns the delivery statuses that status supersedes,
// which is the set an advance is allowed to overwrite.
func statusesBelow(status models.DeliveryStatus) []models.DeliveryStatus {
	switch status {
	case models.DeliveryDelivered:
		return []models.DeliveryStatus{models.DeliverySent}
	case models.DeliveryRead:
		return []models.DeliveryStatus{models.DeliverySent, models.DeliveryDelivered}
	}
	return nil
}
