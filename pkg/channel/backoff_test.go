package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bananastore/bananastore.go/pkg/logger"
)

func newTestConn(t *testing.T) *Conn {
	t.Helper()
	l := logger.Discard()
	c, err := NewConn(Config{URL: "ws://127.0.0.1:1/ws", Logger: &l})
	require.NoError(t, err)
	return c
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	c := newTestConn(t)

	// Delay for attempt k is min(500ms * 2^(k-1), 16s).
	want := []time.Duration{
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		16 * time.Second,
		16 * time.Second,
	}
	for k, expected := range want {
		require.Equal(t, expected, c.nextReconnectDelay(), "attempt %d", k+1)
	}
}

func TestBackoffResetsFullyOnSuccess(t *testing.T) {
	c := newTestConn(t)

	for i := 0; i < 6; i++ {
		c.nextReconnectDelay()
	}

	// A single successful open forgives all prior failures: the next
	// failure starts from the floor, not the prior exponent.
	c.resetBackoff()
	require.Equal(t, 500*time.Millisecond, c.nextReconnectDelay())
	require.Equal(t, 1*time.Second, c.nextReconnectDelay())
}

func TestSendRequiresReady(t *testing.T) {
	c := newTestConn(t)
	require.ErrorIs(t, c.Send([]byte(`{}`)), ErrNotConnected)
}

func TestNewConnRequiresURL(t *testing.T) {
	_, err := NewConn(Config{})
	require.ErrorIs(t, err, ErrNoURL)
}
