package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"livechat-service/internal/models"
)

const (
	defaultQueueDepth = 256
	opTimeout         = 5 * time.Second
)

// WriteQueue serializes every mutation against a ThreadStore through one
// writer goroutine: write N+1 starts only after write N finished its
// durable flush, no matter how many callers submit concurrently.
//
// Submission is fire-and-forget: a failed operation is logged and the
// queue moves on. Callers must treat "submitted" as best-effort, not
// guaranteed durable.
type WriteQueue struct {
	store ThreadStore
	ops   chan func(context.Context)

	closeOnce sync.Once
	done      chan struct{}
}

// NewWriteQueue wraps store and starts the writer goroutine. depth <= 0
// uses the default queue depth; a full queue blocks submitters rather
// than dropping operations.
func NewWriteQueue(store ThreadStore, depth int) *WriteQueue {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	q := &WriteQueue{
		store: store,
		ops:   make(chan func(context.Context), depth),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *WriteQueue) run() {
	defer close(q.done)
	for op := range q.ops {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		op(ctx)
		cancel()
	}
}

// SubmitAppend queues a message append.
func (q *WriteQueue) SubmitAppend(clientID string, info models.ClientInfo, msg models.ChatMessage) {
	q.ops <- func(ctx context.Context) {
		if err := q.store.AppendMessage(ctx, clientID, info, msg); err != nil {
			slog.Error("persist append failed", "clientId", clientID, "messageId", msg.ID, "error", err)
		}
	}
}

// SubmitSetStatus queues a thread status transition.
func (q *WriteQueue) SubmitSetStatus(clientID string, status models.ThreadStatus) {
	q.ops <- func(ctx context.Context) {
		if err := q.store.SetStatus(ctx, clientID, status); err != nil {
			slog.Error("persist status failed", "clientId", clientID, "status", status, "error", err)
		}
	}
}

// SubmitAdvanceDelivery queues a delivery-status advance.
func (q *WriteQueue) SubmitAdvanceDelivery(clientID string, sender models.SenderRole, status models.DeliveryStatus) {
	q.ops <- func(ctx context.Context) {
		if err := q.store.AdvanceDelivery(ctx, clientID, sender, status); err != nil {
			slog.Error("persist delivery advance failed", "clientId", clientID, "error", err)
		}
	}
}

// SubmitDelete queues a thread deletion.
func (q *WriteQueue) SubmitDelete(clientID string) {
	q.ops <- func(ctx context.Context) {
		if err := q.store.DeleteThread(ctx, clientID); err != nil && err != ErrThreadNotFound {
			slog.Error("persist delete failed", "clientId", clientID, "error", err)
		}
	}
}

// GetThread reads straight through to the engine. A just-submitted write
// may not be visible yet; that is the documented durability trade-off.
func (q *WriteQueue) GetThread(ctx context.Context, clientID string) (*models.ChatThread, error) {
	return q.store.GetThread(ctx, clientID)
}

// ListThreads reads straight through to the engine.
func (q *WriteQueue) ListThreads(ctx context.Context, filter ListFilter) ([]models.ChatThread, error) {
	return q.store.ListThreads(ctx, filter)
}

// Flush blocks until every operation submitted before the call has
// completed. Used at shutdown and by tests that need determinism.
func (q *WriteQueue) Flush() {
	marker := make(chan struct{})
	q.ops <- func(context.Context) { close(marker) }
	<-marker
}

// Close flushes pending operations and stops the writer. Submitting
// after Close panics; the queue lives as long as the process.
func (q *WriteQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.ops)
	})
	<-q.done
}
