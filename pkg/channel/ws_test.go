package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gorilla "github.com/gorilla/websocket"

	"github.com/bananastore/bananastore.go/pkg/logger"
)

// A dial that completes while Close is running must not leave the fresh
// transport open: the read loop has no other exit path once entered.
func TestCloseDuringDialClosesFreshTransport(t *testing.T) {
	accepted := make(chan *gorilla.Conn, 1)
	upgrader := gorilla.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- ws
	}))
	defer srv.Close()

	l := logger.Discard()
	c, err := NewConn(Config{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Logger: &l,
	})
	require.NoError(t, err)

	// Mark the connection closed first, then drive one attempt by hand,
	// standing in for a Close that lands between DialContext returning
	// and the transport being stored.
	require.NoError(t, c.Close(context.Background()))

	err = c.runConnection(context.Background())
	require.ErrorIs(t, err, ErrChannelClosed)
	require.Equal(t, StateDisconnected, c.State())

	ws := <-accepted
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, readErr := ws.ReadMessage()
	require.Error(t, readErr, "server still sees a live connection after Close")
}
