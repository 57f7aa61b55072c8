// Package channel implements the persistent duplex request channel used
// by the BananaStore client: one long-lived WebSocket multiplexing many
// concurrent request/response exchanges, with an out-of-band
// authentication handshake, automatic reconnection with backoff,
// per-request timeouts, and structured error propagation.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bananastore/bananastore.go/internal/rand"
)

type outcome struct {
	result json.RawMessage
	err    error
}

type pendingCall struct {
	// ch is buffered so a settlement racing with timeout or disconnect
	// never blocks the read loop; whichever path loses is a no-op.
	ch      chan outcome
	started time.Time
}

// Channel turns the shared connection into a correlated call/response
// abstraction usable by independent, concurrent callers.
type Channel struct {
	conn   *Conn
	logger zerolog.Logger

	// idPrefix is random per Channel instance and idCounter is never
	// reset, so ids from a superseded connection cannot collide with
	// fresh ones even across reconnects.
	idPrefix  string
	idCounter atomic.Uint64

	mu      sync.Mutex
	pending map[string]*pendingCall
}

var _ FrameHandler = (*Channel)(nil)

// New builds a channel and its connection from cfg. The connection is
// not dialed until the first Call or an explicit Connect.
func New(cfg Config) (*Channel, error) {
	conn, err := NewConn(cfg)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		conn:     conn,
		logger:   conn.logger,
		idPrefix: rand.String(RequestIDPrefixLength),
		pending:  make(map[string]*pendingCall),
	}
	conn.SetHandler(c)

	return c, nil
}

// Conn exposes the underlying connection for lifecycle control.
func (c *Channel) Conn() *Conn {
	return c.conn
}

// Call sends one action with its payload and blocks until the matching
// response arrives, the timeout fires, or the connection drops —
// whichever comes first. A timeout <= 0 takes DefaultCallTimeout.
// Failure frames come back as *RemoteError; timeouts as *TimeoutError.
func (c *Channel) Call(ctx context.Context, action string, payload any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	if err := c.conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	id := fmt.Sprintf("%s-%d", c.idPrefix, c.idCounter.Add(1))
	pc, err := c.register(id)
	if err != nil {
		return nil, err
	}
	defer c.remove(id)

	data, err := json.Marshal(Request{ID: id, Action: action, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshaling %q request: %w", action, err)
	}
	if err := c.conn.Send(data); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, &TimeoutError{Action: action, Timeout: timeout}
	case out := <-pc.ch:
		if out.err != nil {
			return nil, out.err
		}
		return out.result, nil
	}
}

// HandleResponse settles the pending call matching the frame's id.
// Frames with no pending entry are discarded: they are late, duplicated,
// or were issued on a superseded connection. A debug line is the only
// diagnostic; requests are never failed on that assumption.
func (c *Channel) HandleResponse(res *Response) {
	c.mu.Lock()
	pc, ok := c.pending[res.ID]
	if ok {
		delete(c.pending, res.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug().Str("id", res.ID).Msg("discarding frame with no pending request")
		return
	}

	if res.OK {
		pc.ch <- outcome{result: res.Result}
		return
	}
	pc.ch <- outcome{err: &RemoteError{
		Message:   res.Error,
		Code:      res.Code,
		Limit:     res.Limit,
		Current:   res.Current,
		Attempted: res.Attempted,
	}}
}

// HandleDisconnect fails every outstanding call immediately so no caller
// is left to hang until its timeout.
func (c *Channel) HandleDisconnect(err error) {
	c.mu.Lock()
	failed := c.pending
	c.pending = make(map[string]*pendingCall)
	c.mu.Unlock()

	for id, pc := range failed {
		c.logger.Debug().Str("id", id).Dur("outstanding", time.Since(pc.started)).Msg("failing call on disconnect")
		pc.ch <- outcome{err: err}
	}
	if len(failed) > 0 {
		c.logger.Info().Int("count", len(failed)).Msg("failed outstanding calls on disconnect")
	}
}

func (c *Channel) register(id string) (*pendingCall, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[id]; ok {
		return nil, fmt.Errorf("%w: %v", ErrIDInUse, id)
	}

	pc := &pendingCall{
		ch:      make(chan outcome, 1),
		started: time.Now(),
	}
	c.pending[id] = pc

	return pc, nil
}

func (c *Channel) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func (c *Channel) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
