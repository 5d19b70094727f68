package chatclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livechat-service/internal/protocol"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) Send(raw []byte) error {
	select {
	case <-f.closed:
		return errors.New("transport closed")
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), raw...))
	return nil
}

func (f *fakeTransport) Receive() ([]byte, error) {
	select {
	case raw := <-f.inbound:
		return raw, nil
	case <-f.closed:
		return nil, errors.New("transport closed")
	}
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// Deliver pushes a server frame to the client.
func (f *fakeTransport) Deliver(t *testing.T, p protocol.Payload) {
	t.Helper()
	raw, err := protocol.Encode(p)
	require.NoError(t, err)
	f.inbound <- raw
}

// SentFrames decodes everything the client has sent so far.
func (f *fakeTransport) SentFrames(t *testing.T) []protocol.Payload {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Payload, 0, len(f.sent))
	for _, raw := range f.sent {
		payload, err := protocol.Decode(raw)
		require.NoError(t, err)
		out = append(out, payload)
	}
	return out
}

// scriptedDialer fails a fixed number of times, then hands out transports
// in order.
type scriptedDialer struct {
	mu         sync.Mutex
	failures   int
	transports []*fakeTransport
	calls      int
}

func (d *scriptedDialer) dial(ctx context.Context) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("dial refused")
	}
	if len(d.transports) == 0 {
		return nil, errors.New("dial refused")
	}
	tr := d.transports[0]
	d.transports = d.transports[1:]
	return tr, nil
}

func (d *scriptedDialer) dialCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// stateRecorder captures lifecycle transitions.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *stateRecorder) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return ""
	}
	return r.states[len(r.states)-1]
}

func TestRetryDelaySchedule(t *testing.T) {
	base := time.Second
	max := 30 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // 32s capped
		{10, 30 * time.Second},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, retryDelay(tc.attempt, base, max), "attempt %d", tc.attempt)
	}
}

func TestConnectIdentifiesAndReportsState(t *testing.T) {
	tr := newFakeTransport()
	dialer := &scriptedDialer{transports: []*fakeTransport{tr}}
	rec := &stateRecorder{}

	ctrl := NewController(Options{
		Dial:          dialer.dial,
		Identify:      protocol.Identify{ClientID: "v1", Name: "Ann"},
		OnStateChange: rec.record,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	require.Eventually(t, func() bool {
		return len(tr.SentFrames(t)) >= 1
	}, waitFor, tick)

	identify, ok := tr.SentFrames(t)[0].(*protocol.Identify)
	require.True(t, ok, "first frame after connect is identify")
	assert.Equal(t, "v1", identify.ClientID)
	assert.Equal(t, "Ann", identify.Name)

	assert.Equal(t, []State{StateConnecting, StateConnected}, rec.all())
}

func TestReconnectResetsAttemptsAndResyncs(t *testing.T) {
	first := newFakeTransport()
	second := newFakeTransport()
	dialer := &scriptedDialer{transports: []*fakeTransport{first, second}}
	rec := &stateRecorder{}

	ctrl := NewController(Options{
		Dial:          dialer.dial,
		Identify:      protocol.Identify{IsAdmin: true, Name: "Support"},
		OnStateChange: rec.record,
		BaseDelay:     time.Millisecond,
	})
	ctrl.SetOpenThread("v1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	require.Eventually(t, func() bool {
		return len(first.SentFrames(t)) >= 3
	}, waitFor, tick)

	// Cold resync on connect: identify, then the admin dashboard and the
	// open thread's history.
	frames := first.SentFrames(t)
	assert.IsType(t, &protocol.Identify{}, frames[0])
	assert.IsType(t, &protocol.GetActiveChats{}, frames[1])
	history, ok := frames[2].(*protocol.GetHistory)
	require.True(t, ok)
	assert.Equal(t, "v1", history.ClientID)

	// Drop the transport; the controller must dial again and repeat the
	// full resync on the new connection.
	first.Close()
	require.Eventually(t, func() bool {
		return len(second.SentFrames(t)) >= 3
	}, waitFor, tick)
	assert.IsType(t, &protocol.Identify{}, second.SentFrames(t)[0])
	assert.Equal(t, StateConnected, rec.last())
}

func TestRetryCeilingIsTerminal(t *testing.T) {
	dialer := &scriptedDialer{failures: 1 << 30}
	rec := &stateRecorder{}

	ctrl := NewController(Options{
		Dial:          dialer.dial,
		OnStateChange: rec.record,
		BaseDelay:     time.Millisecond,
		MaxDelay:      4 * time.Millisecond,
	})

	done := make(chan struct{})
	go func() {
		ctrl.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("controller kept retrying past the ceiling")
	}

	assert.Equal(t, StateLost, ctrl.State())
	assert.Equal(t, StateLost, rec.last())
	// One initial attempt plus the ten scheduled retries.
	assert.Equal(t, defaultMaxAttempts+1, dialer.dialCalls())
}

func TestQueuedFramesFlushOnConnect(t *testing.T) {
	tr := newFakeTransport()
	dialer := &scriptedDialer{failures: 2, transports: []*fakeTransport{tr}}

	ctrl := NewController(Options{
		Dial:      dialer.dial,
		Identify:  protocol.Identify{ClientID: "v1", Name: "Ann"},
		BaseDelay: time.Millisecond,
	})

	// Queued while no transport exists; keeps its id for the replay filter.
	require.NoError(t, ctrl.Send(&protocol.Chat{ClientID: "v1", Message: "offline", ID: "msg-1"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	require.Eventually(t, func() bool {
		return len(tr.SentFrames(t)) >= 2
	}, waitFor, tick)

	frames := tr.SentFrames(t)
	assert.IsType(t, &protocol.Identify{}, frames[0])
	chat, ok := frames[1].(*protocol.Chat)
	require.True(t, ok, "queued frame is flushed right after identify")
	assert.Equal(t, "msg-1", chat.ID)
	assert.Equal(t, "offline", chat.Message)
}

func TestAssignedClientIDUsedOnReconnect(t *testing.T) {
	first := newFakeTransport()
	second := newFakeTransport()
	dialer := &scriptedDialer{transports: []*fakeTransport{first, second}}

	ctrl := NewController(Options{
		Dial:      dialer.dial,
		Identify:  protocol.Identify{Name: "Ann"},
		BaseDelay: time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	require.Eventually(t, func() bool {
		return len(first.SentFrames(t)) >= 1
	}, waitFor, tick)

	first.Deliver(t, &protocol.ClientID{ClientID: "visitor-abc"})
	// Give the read loop a beat to absorb the assignment before dropping
	// the connection.
	require.Eventually(t, func() bool {
		ctrl.mu.Lock()
		defer ctrl.mu.Unlock()
		return ctrl.identify.ClientID == "visitor-abc"
	}, waitFor, tick)

	first.Close()
	require.Eventually(t, func() bool {
		return len(second.SentFrames(t)) >= 1
	}, waitFor, tick)

	identify, ok := second.SentFrames(t)[0].(*protocol.Identify)
	require.True(t, ok)
	assert.Equal(t, "visitor-abc", identify.ClientID, "re-identify carries the assigned id")
}

func TestSendWhileConnectedUsesTransport(t *testing.T) {
	tr := newFakeTransport()
	dialer := &scriptedDialer{transports: []*fakeTransport{tr}}

	ctrl := NewController(Options{
		Dial:     dialer.dial,
		Identify: protocol.Identify{ClientID: "v1", Name: "Ann"},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	require.Eventually(t, func() bool {
		return ctrl.State() == StateConnected
	}, waitFor, tick)

	require.NoError(t, ctrl.Send(&protocol.Typing{Typing: true}))
	require.Eventually(t, func() bool {
		frames := tr.SentFrames(t)
		return len(frames) >= 2 && frames[len(frames)-1].FrameType() == protocol.FrameTyping
	}, waitFor, tick)
}

func TestOnFrameReceivesDecodedPayloads(t *testing.T) {
	tr := newFakeTransport()
	dialer := &scriptedDialer{transports: []*fakeTransport{tr}}

	var mu sync.Mutex
	var got []protocol.Payload
	ctrl := NewController(Options{
		Dial:     dialer.dial,
		Identify: protocol.Identify{ClientID: "v1", Name: "Ann"},
		OnFrame: func(p protocol.Payload) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, p)
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx)

	require.Eventually(t, func() bool {
		return ctrl.State() == StateConnected
	}, waitFor, tick)

	tr.inbound <- []byte("{{{ garbage") // dropped, connection survives
	tr.Deliver(t, &protocol.AdminMessage{TargetClientID: "v1", Message: "Hello", ID: "a-1"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	reply, ok := got[0].(*protocol.AdminMessage)
	require.True(t, ok)
	assert.Equal(t, "Hello", reply.Message)
}
