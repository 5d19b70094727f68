package chatclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"livechat-service/internal/protocol"
)

// State is the controller's connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	// StateLost is terminal: the retry ceiling was exhausted and the
	// embedding UI must ask the user to reload.
	StateLost State = "lost"
)

const (
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultMaxAttempts = 10
)

// Transport is one live connection. gorilla's *websocket.Conn is wrapped
// into this shape by the embedding application.
type Transport interface {
	Send(raw []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Options configures a Controller. Dial is the only required field.
type Options struct {
	Dial func(ctx context.Context) (Transport, error)

	// Identify is replayed on every successful connection. The ClientID
	// field is updated in place when the server assigns one.
	Identify protocol.Identify

	// OnFrame receives every decoded inbound frame.
	OnFrame func(protocol.Payload)
	// OnStateChange observes lifecycle transitions, including StateLost.
	OnStateChange func(State)

	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// Controller owns the transport lifecycle: it dials, re-identifies and
// cold-resyncs after every reconnect, and backs off exponentially on
// failure. A single cancellable timer drives retries, so repeated
// reconnect cycles cannot leak timers.
type Controller struct {
	opts Options

	mu        sync.Mutex
	state     State
	transport Transport
	identify  protocol.Identify
	// openThread is the thread whose history is re-requested after a
	// reconnect (admins viewing a conversation, or the visitor's own).
	openThread string
	// outbox holds frames sent while disconnected. They keep their
	// original ids, so the server-side replay filter makes the flush safe.
	outbox [][]byte

	attempts int
}

func NewController(opts Options) *Controller {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	return &Controller{
		opts:     opts,
		state:    StateDisconnected,
		identify: opts.Identify,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetOpenThread records which thread's history to re-request on resync.
// An empty id clears it.
func (c *Controller) SetOpenThread(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openThread = clientID
}

// Send delivers a frame when connected, or queues it for the flush that
// follows the next successful reconnect.
func (c *Controller) Send(p protocol.Payload) error {
	raw, err := protocol.Encode(p)
	if err != nil {
		return err
	}

	c.mu.Lock()
	tr := c.transport
	if tr == nil {
		c.outbox = append(c.outbox, raw)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return tr.Send(raw)
}

// Run drives the connect/read/backoff loop until ctx is cancelled or the
// retry ceiling is exhausted.
func (c *Controller) Run(ctx context.Context) {
	for {
		c.setState(StateConnecting)

		tr, err := c.opts.Dial(ctx)
		if err != nil {
			c.setState(StateDisconnected)
			if ctx.Err() != nil {
				return
			}
			if !c.backoff(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.attempts = 0
		c.transport = tr
		c.mu.Unlock()
		c.setState(StateConnected)

		// Cancellation must unblock the read loop.
		stop := context.AfterFunc(ctx, func() { tr.Close() })
		c.resync(tr)
		c.readLoop(tr)
		stop()

		c.mu.Lock()
		c.transport = nil
		c.mu.Unlock()
		c.setState(StateDisconnected)

		if ctx.Err() != nil {
			return
		}
		if !c.backoff(ctx) {
			return
		}
	}
}

// backoff sleeps for the next retry delay. It returns false when the
// ceiling is exhausted (terminal) or ctx is cancelled.
func (c *Controller) backoff(ctx context.Context) bool {
	c.mu.Lock()
	attempt := c.attempts
	c.attempts++
	c.mu.Unlock()

	if attempt >= c.opts.MaxAttempts {
		c.setState(StateLost)
		return false
	}

	timer := time.NewTimer(retryDelay(attempt, c.opts.BaseDelay, c.opts.MaxDelay))
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// retryDelay is min(maxDelay, 2^attempt * baseDelay).
func retryDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := baseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// resync performs the cold resynchronization that follows every
// successful connection: identify again, flush queued frames, and
// re-request the state a resumed session would otherwise have missed.
func (c *Controller) resync(tr Transport) {
	c.mu.Lock()
	identify := c.identify
	openThread := c.openThread
	pending := c.outbox
	c.outbox = nil
	c.mu.Unlock()

	c.sendPayload(tr, &identify)
	for _, raw := range pending {
		if err := tr.Send(raw); err != nil {
			slog.Warn("outbox flush failed", "error", err)
			break
		}
	}
	if identify.IsAdmin {
		c.sendPayload(tr, &protocol.GetActiveChats{})
	}
	if openThread != "" {
		c.sendPayload(tr, &protocol.GetHistory{ClientID: openThread})
	}
}

func (c *Controller) sendPayload(tr Transport, p protocol.Payload) {
	raw, err := protocol.Encode(p)
	if err != nil {
		slog.Warn("resync frame encode failed", "type", p.FrameType(), "error", err)
		return
	}
	if err := tr.Send(raw); err != nil {
		slog.Warn("resync frame send failed", "type", p.FrameType(), "error", err)
	}
}

func (c *Controller) readLoop(tr Transport) {
	for {
		raw, err := tr.Receive()
		if err != nil {
			tr.Close()
			return
		}

		payload, err := protocol.Decode(raw)
		if err != nil {
			slog.Warn("dropping malformed inbound frame", "error", err)
			continue
		}

		if assigned, ok := payload.(*protocol.ClientID); ok {
			c.mu.Lock()
			c.identify.ClientID = assigned.ClientID
			c.mu.Unlock()
		}

		if c.opts.OnFrame != nil {
			c.opts.OnFrame(payload)
		}
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}
