// Package fakegen provides a fake BananaStore generation backend for
// testing. It speaks the widget frame protocol over WebSocket: it checks
// the token query parameter on upgrade, pushes the authentication frame
// on open, and answers action frames from configurable stubs, with
// failure injection for delays, swallowed responses, and dropped
// connections.
//
// The WebSocket server is implemented using the `gws` library.
package fakegen

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lxzan/gws"

	"github.com/bananastore/bananastore.go/pkg/channel"
)

// FailureType represents the type of failure to inject while handling a request
type FailureType string

const (
	// FailureNone indicates no failure injection
	FailureNone FailureType = "none"
	// FailureResponseDelay delays the response (sent in background)
	FailureResponseDelay FailureType = "response_delay"
	// FailureNoResponse swallows the request entirely
	FailureNoResponse FailureType = "no_response"
	// FailureWebSocketClose sends a WebSocket close frame with configurable code/reason
	FailureWebSocketClose FailureType = "websocket_close"
	// FailureDropConnection immediately closes the underlying network connection
	FailureDropConnection FailureType = "drop_connection"
)

// FailureConfig defines how to inject a specific failure type
type FailureConfig struct {
	Type FailureType
	// Delay applies to FailureResponseDelay
	Delay time.Duration
	// CloseCode and CloseReason apply to FailureWebSocketClose
	CloseCode   uint16
	CloseReason string
}

// RequestMatcher defines criteria for matching incoming action frames.
type RequestMatcher struct {
	// Action is the action name to match
	Action string
	// Matcher is an optional function to match based on the raw payload.
	// If nil, only the action name is used for matching.
	Matcher func(payload json.RawMessage) bool
}

// Stub defines a pre-configured response for matching requests.
type Stub struct {
	Matcher RequestMatcher
	// Result is the successful result to return (mutually exclusive with Error)
	Result any
	// Error is the failure frame to return (mutually exclusive with Result)
	Error *ErrorStub
	// Failures defines failure injection for this response
	Failures []FailureConfig
}

// ErrorStub is the failure half of a stub, including optional
// rate-limit context fields.
type ErrorStub struct {
	Message   string
	Code      int
	Limit     *float64
	Current   *float64
	Attempted *float64
}

// Server is a fake generation backend speaking the widget frame protocol.
type Server struct {
	addr     string
	listener net.Listener
	server   *gws.Server

	mu          sync.RWMutex
	stubs       []Stub
	connections map[*gws.Conn]bool
	queryTokens []string
	requestIDs  []string

	ctx    context.Context
	cancel context.CancelFunc

	// Token, when set, is pushed to every connection by the auth frame.
	// When empty each connection gets a fresh uuid, mirroring anonymous
	// connects against a real backend.
	Token string

	// ValidTokens, when non-empty, restricts upgrades to the listed
	// tokens; anything else is rejected before the WebSocket handshake.
	ValidTokens []string
}

// Handler implements the gws event interface for WebSocket connections
type Handler struct {
	server *Server
}

// NewServer creates a new fake backend server.
// Use "127.0.0.1:0" to bind to a random available port.
func NewServer(addr string) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		addr:        addr,
		connections: make(map[*gws.Conn]bool),
		ctx:         ctx,
		cancel:      cancel,
	}

	handler := &Handler{server: s}
	s.server = gws.NewServer(handler, &gws.ServerOption{
		Authorize: s.authorize,
	})
	s.server.OnError = func(_ net.Conn, err error) {
		if !errors.Is(err, net.ErrClosed) {
			log.Printf("fakegen server error: %v", err)
		}
	}

	return s
}

// AddStub adds a stub to the server. Stubs are matched in the order
// they were added.
func (s *Server) AddStub(stub Stub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs = append(s.stubs, stub)
}

// SimpleStub creates a stub answering action with result and no failure injection.
func SimpleStub(action string, result any) Stub {
	return Stub{
		Matcher: RequestMatcher{Action: action},
		Result:  result,
	}
}

// FailureStub creates a stub answering action with a failure frame.
func FailureStub(action string, code int, message string) Stub {
	return Stub{
		Matcher: RequestMatcher{Action: action},
		Error:   &ErrorStub{Message: message, Code: code},
	}
}

// Start begins accepting WebSocket connections.
func (s *Server) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		if err := s.server.RunListener(listener); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("fakegen server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts down the server and closes the listener.
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Address returns the actual address the server is listening on.
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the ws:// endpoint of the server.
func (s *Server) URL() string {
	return "ws://" + s.Address()
}

// QueryTokens returns the token query parameters seen on upgrades, in
// connection order. Anonymous connects record an empty string.
func (s *Server) QueryTokens() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.queryTokens...)
}

// RequestIDs returns every correlation id received so far.
func (s *Server) RequestIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.requestIDs...)
}

// DropConnections forcefully closes every live connection, simulating a
// backend crash.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := make([]*gws.Conn, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.NetConn().Close()
	}
}

func (s *Server) authorize(r *http.Request, session gws.SessionStorage) bool {
	token := r.URL.Query().Get("token")

	s.mu.Lock()
	s.queryTokens = append(s.queryTokens, token)
	valid := s.ValidTokens
	s.mu.Unlock()

	if len(valid) > 0 {
		found := false
		for _, v := range valid {
			if v == token {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	session.Store("token", token)
	return true
}

func (h *Handler) OnOpen(socket *gws.Conn) {
	s := h.server

	s.mu.Lock()
	s.connections[socket] = true
	pushed := s.Token
	s.mu.Unlock()

	if pushed == "" {
		if v, ok := socket.Session().Load("token"); ok {
			pushed, _ = v.(string)
		}
	}
	if pushed == "" {
		pushed = uuid.NewString()
	}

	data, err := json.Marshal(map[string]string{"type": "auth", "token": pushed})
	if err != nil {
		log.Printf("marshaling auth push: %v", err)
		return
	}
	if err := socket.WriteMessage(gws.OpcodeText, data); err != nil {
		log.Printf("writing auth push: %v", err)
	}
}

func (h *Handler) OnClose(socket *gws.Conn, err error) {
	h.server.mu.Lock()
	delete(h.server.connections, socket)
	h.server.mu.Unlock()
}

func (h *Handler) OnPing(socket *gws.Conn, payload []byte) {
	if err := socket.WritePong(payload); err != nil {
		log.Printf("writing pong: %v", err)
	}
}

func (h *Handler) OnPong(socket *gws.Conn, payload []byte) {
}

func (h *Handler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	var req struct {
		ID      string          `json:"id"`
		Action  string          `json:"action"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(message.Bytes(), &req); err != nil {
		h.sendError(socket, "", &ErrorStub{Message: "malformed frame", Code: 400})
		return
	}

	h.server.mu.Lock()
	h.server.requestIDs = append(h.server.requestIDs, req.ID)
	h.server.mu.Unlock()

	h.server.mu.RLock()
	var matched *Stub
	for i := range h.server.stubs {
		stub := &h.server.stubs[i]
		if stub.Matcher.Action != req.Action {
			continue
		}
		if stub.Matcher.Matcher == nil || stub.Matcher.Matcher(req.Payload) {
			matched = stub
			break
		}
	}
	h.server.mu.RUnlock()

	if matched == nil {
		h.sendError(socket, req.ID, &ErrorStub{Message: "Unknown action: " + req.Action, Code: 400})
		return
	}

	for _, failure := range matched.Failures {
		switch failure.Type {
		case FailureNoResponse:
			return

		case FailureResponseDelay:
			stub := matched
			id := req.ID
			go func() {
				time.Sleep(failure.Delay)
				h.respond(socket, id, stub)
			}()
			return

		case FailureWebSocketClose:
			code := failure.CloseCode
			if code == 0 {
				code = 1001
			}
			reason := failure.CloseReason
			if reason == "" {
				reason = "failure injection"
			}
			socket.WriteClose(code, []byte(reason))
			return

		case FailureDropConnection:
			socket.NetConn().Close()
			return
		}
	}

	h.respond(socket, req.ID, matched)
}

func (h *Handler) respond(socket *gws.Conn, id string, stub *Stub) {
	if stub.Error != nil {
		h.sendError(socket, id, stub.Error)
		return
	}
	h.sendResult(socket, id, stub.Result)
}

func (h *Handler) sendResult(socket *gws.Conn, id string, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		h.sendError(socket, id, &ErrorStub{Message: "sendResult: " + err.Error(), Code: 500})
		return
	}

	data, err := json.Marshal(channel.Response{ID: id, OK: true, Result: raw})
	if err != nil {
		log.Printf("marshaling response: %v", err)
		return
	}
	if err := socket.WriteMessage(gws.OpcodeText, data); err != nil {
		log.Printf("writing response: %v", err)
	}
}

func (h *Handler) sendError(socket *gws.Conn, id string, stub *ErrorStub) {
	data, err := json.Marshal(channel.Response{
		ID:        id,
		OK:        false,
		Error:     stub.Message,
		Code:      stub.Code,
		Limit:     stub.Limit,
		Current:   stub.Current,
		Attempted: stub.Attempted,
	})
	if err != nil {
		log.Printf("marshaling error response: %v", err)
		return
	}
	if err := socket.WriteMessage(gws.OpcodeText, data); err != nil {
		log.Printf("writing error response: %v", err)
	}
}
