package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	gorilla "github.com/gorilla/websocket"

	"github.com/bananastore/bananastore.go/pkg/tokenstore"
)

// FrameHandler receives the inbound frames that are not authentication
// pushes, plus the disconnect event that bulk-fails outstanding calls.
// Both methods are invoked from the single read loop, one event at a time.
type FrameHandler interface {
	HandleResponse(res *Response)
	HandleDisconnect(err error)
}

// Conn owns at most one live WebSocket transport at a time and retries
// lost connections forever. Callers obtain a usable connection through
// Connect and write frames through Send; everything else happens inside
// the supervisor goroutine.
type Conn struct {
	endpoint *url.URL
	origin   string
	dialer   *gorilla.Dialer
	store    tokenstore.Store
	logger   zerolog.Logger

	handler FrameHandler

	mu      sync.Mutex
	state   State
	ws      *gorilla.Conn
	token   string
	readyCh chan struct{}
	backoff time.Duration
	closed  bool

	backoffFloor time.Duration
	backoffCap   time.Duration

	runCtx    context.Context
	runCancel context.CancelFunc
	runDone   chan struct{}

	writeLock sync.Mutex
}

// NewConn prepares a connection without dialing. The token used for the
// first dial is resolved here: an explicit Config.Token wins over the
// store's cached value, and the store is only consulted when the host
// supplied nothing fresh.
func NewConn(cfg Config) (*Conn, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint url: %w", err)
	}

	c := &Conn{
		endpoint:     u,
		origin:       u.Host,
		dialer:       cfg.dialer(),
		store:        cfg.Store,
		logger:       cfg.makeLogger(),
		state:        StateDisconnected,
		readyCh:      make(chan struct{}),
		backoffFloor: cfg.backoffFloor(),
		backoffCap:   cfg.backoffCap(),
	}
	c.backoff = c.backoffFloor

	c.token = cfg.Token
	if c.token == "" && c.store != nil {
		token, err := c.store.Load(c.origin)
		switch {
		case err == nil:
			c.token = token
		case !errors.Is(err, tokenstore.ErrNotFound):
			c.logger.Warn().Err(err).Str("origin", c.origin).Msg("failed to load cached token")
		}
	}

	return c, nil
}

// SetHandler wires the frame handler. Must be called before Connect.
func (c *Conn) SetHandler(h FrameHandler) {
	c.handler = h
}

// State reports the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Token returns the current session token, which may have been supplied
// by the host, loaded from the store, or delivered by the server.
func (c *Conn) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Connect ensures the supervisor is running and blocks until the
// connection reaches Ready. It is idempotent: while a connect is already
// in flight all callers share it, and when the connection is Ready it
// returns immediately.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	if c.state == StateReady {
		c.mu.Unlock()
		return nil
	}
	if c.runCtx == nil {
		c.runCtx, c.runCancel = context.WithCancel(context.Background())
		c.runDone = make(chan struct{})
		go c.supervise(c.runCtx)
	}
	ready := c.readyCh
	runCtx := c.runCtx
	c.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-runCtx.Done():
		return ErrChannelClosed
	}
}

// Send writes one frame verbatim. It fails with ErrNotConnected unless
// the connection is Ready.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ws := c.ws
	c.mu.Unlock()

	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	return ws.WriteMessage(gorilla.TextMessage, data)
}

// Close stops the supervisor and closes the transport. The context
// bounds how long we wait for the close message to be written; the
// connection is torn down locally regardless.
func (c *Conn) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.runCancel
	done := c.runDone
	ws := c.ws
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var closeErr error
	if ws != nil {
		writeErr := make(chan error, 1)
		go func() {
			c.writeLock.Lock()
			defer c.writeLock.Unlock()
			writeErr <- ws.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(CloseMessageCode, ""))
		}()

		select {
		case err := <-writeErr:
			if err != nil {
				c.logger.Error().Err(err).Msg("failed to write close message")
			}
		case <-ctx.Done():
		}

		closeErr = ws.Close()
	}

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	return closeErr
}

// supervise dials, pumps inbound frames until the transport drops, then
// schedules the next attempt. Reconnection is unconditional and never
// surfaces as a fatal error; only in-flight calls are failed on close.
func (c *Conn) supervise(ctx context.Context) {
	defer close(c.runDone)

	for {
		err := c.runConnection(ctx)
		if ctx.Err() != nil {
			return
		}

		delay := c.nextReconnectDelay()
		c.logger.Info().Err(err).Dur("delay", delay).Msg("connection lost, scheduling reconnect")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// nextReconnectDelay returns the delay before the upcoming reconnect
// attempt and doubles the stored delay for the one after, up to the cap.
func (c *Conn) nextReconnectDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	delay := c.backoff
	c.backoff *= 2
	if c.backoff > c.backoffCap {
		c.backoff = c.backoffCap
	}
	return delay
}

// resetBackoff forgives all prior failures. A single successful open
// resets the delay fully to the floor rather than decaying it.
func (c *Conn) resetBackoff() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backoff = c.backoffFloor
}

// runConnection performs one connection lifetime: dial, authenticate via
// the server push, pump frames until the transport reports an error.
// Transport errors and clean closes are deliberately not distinguished;
// both end the lifetime and funnel into the same disconnect path.
func (c *Conn) runConnection(ctx context.Context) error {
	c.mustTransition(StateConnecting)

	ws, res, err := c.dialer.DialContext(ctx, c.dialURL(), nil)
	if err != nil {
		c.toDisconnected(err)
		return err
	}
	res.Body.Close()

	// Close may have run while the dial was in flight; its cancel has no
	// effect on a dial that already returned, so the transport must be
	// torn down here or the read loop below would never exit.
	c.mu.Lock()
	if c.closed || ctx.Err() != nil {
		c.mu.Unlock()
		ws.Close()
		c.toDisconnected(ErrChannelClosed)
		return ErrChannelClosed
	}
	c.ws = ws
	c.mu.Unlock()
	c.resetBackoff()
	c.mustTransition(StateAuthenticating)
	c.logger.Debug().Str("origin", c.origin).Msg("transport open, awaiting authentication push")

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.toDisconnected(err)
			return err
		}
		c.handleFrame(data)
	}
}

// dialURL builds the connection URL, appending the current session token
// as a query parameter when one is known. Anonymous connects are legal;
// the server issues a token via the authentication push.
func (c *Conn) dialURL() string {
	u := *c.endpoint

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Conn) handleFrame(data []byte) {
	var frame Response
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logger.Warn().Err(err).Msg("discarding unparseable frame")
		return
	}

	if frame.Type == authFrameType {
		c.handleAuthPush(frame.Token)
		return
	}

	if c.handler != nil {
		c.handler.HandleResponse(&frame)
	}
}

// handleAuthPush caches the delivered token and, when it completes the
// handshake, moves the connection to Ready and wakes every Connect
// waiter. The server may re-push while Ready; then only the token is
// refreshed.
func (c *Conn) handleAuthPush(token string) {
	c.mu.Lock()
	if token != "" {
		c.token = token
	}
	var ready chan struct{}
	if c.state == StateAuthenticating {
		c.state = StateReady
		ready = c.readyCh
	}
	c.mu.Unlock()

	if token != "" && c.store != nil {
		if err := c.store.Save(c.origin, token); err != nil {
			c.logger.Warn().Err(err).Str("origin", c.origin).Msg("failed to persist session token")
		}
	}

	if ready != nil {
		c.logger.Debug().Msg("authenticated, connection ready")
		close(ready)
	}
}

// toDisconnected is the single close path. It bulk-fails the pending
// table before any new call can be issued on the replacement connection.
// The ready channel is replaced only when it was consumed by a Ready
// period; waiters of a connect attempt that never reached Ready keep
// their channel and are resolved by a later successful attempt.
func (c *Conn) toDisconnected(cause error) {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	wasReady := c.state == StateReady
	c.state = StateDisconnected
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
	if wasReady {
		c.readyCh = make(chan struct{})
	}
	c.mu.Unlock()

	c.logger.Debug().Err(cause).Msg("transport closed")

	if c.handler != nil {
		c.handler.HandleDisconnect(ErrChannelClosed)
	}
}

func (c *Conn) mustTransition(newState State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := c.state.TransitionTo(newState)
	if err != nil {
		panic(fmt.Sprintf("BUG: %v", err))
	}
	c.state = next
}
