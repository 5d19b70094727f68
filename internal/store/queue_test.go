package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livechat-service/internal/models"
)

// trackingStore records call overlap so tests can prove the queue never
// runs two writes at once.
type trackingStore struct {
	mu        sync.Mutex
	inFlight  int
	maxActive int
	appended  []string
	failIDs   map[string]bool
}

func (s *trackingStore) enter() {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxActive {
		s.maxActive = s.inFlight
	}
	s.mu.Unlock()
	// Give overlapping calls a chance to collide.
	time.Sleep(time.Millisecond)
}

func (s *trackingStore) exit() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
}

func (s *trackingStore) AppendMessage(_ context.Context, clientID string, _ models.ClientInfo, msg models.ChatMessage) error {
	s.enter()
	defer s.exit()
	if s.failIDs[msg.ID] {
		return errors.New("disk on fire")
	}
	s.mu.Lock()
	s.appended = append(s.appended, msg.ID)
	s.mu.Unlock()
	return nil
}

func (s *trackingStore) GetThread(context.Context, string) (*models.ChatThread, error) {
	return nil, ErrThreadNotFound
}

func (s *trackingStore) ListThreads(context.Context, ListFilter) ([]models.ChatThread, error) {
	return nil, nil
}

func (s *trackingStore) SetStatus(_ context.Context, _ string, _ models.ThreadStatus) error {
	s.enter()
	defer s.exit()
	return nil
}

func (s *trackingStore) AdvanceDelivery(_ context.Context, _ string, _ models.SenderRole, _ models.DeliveryStatus) error {
	s.enter()
	defer s.exit()
	return nil
}

func (s *trackingStore) DeleteThread(_ context.Context, _ string) error {
	s.enter()
	defer s.exit()
	return nil
}

func TestWriteQueueNeverInterleavesWrites(t *testing.T) {
	engine := &trackingStore{}
	q := NewWriteQueue(engine, 64)
	defer q.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				q.SubmitAppend("v1", models.ClientInfo{}, models.ChatMessage{ID: fmt.Sprintf("g%d-m%d", g, i)})
			}
		}(g)
	}
	wg.Wait()
	q.Flush()

	assert.Equal(t, 1, engine.maxActive, "writes must be fully serialized")
	assert.Len(t, engine.appended, 80)
}

func TestWriteQueuePreservesSubmissionOrderPerCaller(t *testing.T) {
	engine := &trackingStore{}
	q := NewWriteQueue(engine, 64)
	defer q.Close()

	for i := 0; i < 20; i++ {
		q.SubmitAppend("v1", models.ClientInfo{}, models.ChatMessage{ID: fmt.Sprintf("msg-%02d", i)})
	}
	q.Flush()

	require.Len(t, engine.appended, 20)
	for i, id := range engine.appended {
		assert.Equal(t, fmt.Sprintf("msg-%02d", i), id)
	}
}

func TestWriteQueueContinuesAfterFailure(t *testing.T) {
	engine := &trackingStore{failIDs: map[string]bool{"msg-bad": true}}
	q := NewWriteQueue(engine, 64)
	defer q.Close()

	q.SubmitAppend("v1", models.ClientInfo{}, models.ChatMessage{ID: "msg-1"})
	q.SubmitAppend("v1", models.ClientInfo{}, models.ChatMessage{ID: "msg-bad"})
	q.SubmitAppend("v1", models.ClientInfo{}, models.ChatMessage{ID: "msg-2"})
	q.Flush()

	// The failed write is dropped, the queue keeps going.
	assert.Equal(t, []string{"msg-1", "msg-2"}, engine.appended)
}

func TestWriteQueueFlushWaitsForPendingWrites(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	q := NewWriteQueue(s, 0)
	defer q.Close()

	q.SubmitAppend("v1", models.ClientInfo{Name: "Ann"}, visitorMsg("msg-1", "v1", "Hi", time.Now().UTC()))
	q.Flush()

	thread, err := q.GetThread(context.Background(), "v1")
	require.NoError(t, err)
	require.Len(t, thread.Messages, 1)
	assert.Equal(t, "Hi", thread.Messages[0].Text)
}

func TestWriteQueueDeleteUnknownThreadIsQuiet(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	q := NewWriteQueue(s, 0)

	q.SubmitDelete("nobody")
	q.Flush()
	q.Close()
}
