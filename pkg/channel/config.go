package channel

import (
	"time"

	"github.com/rs/zerolog"

	gorilla "github.com/gorilla/websocket"

	"github.com/bananastore/bananastore.go/pkg/logger"
	"github.com/bananastore/bananastore.go/pkg/tokenstore"
)

// DefaultDialer is the gorilla dialer used unless Config.Dialer overrides it.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
}

// Config carries everything needed to open a channel to the backend.
type Config struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// Token is a fresh session token supplied by the host at startup.
	// When set it overrides whatever the Store has cached; a token later
	// delivered by the server's authentication push supersedes both.
	Token string

	// Store persists the session token per origin. Nil disables caching.
	Store tokenstore.Store

	// Dialer overrides DefaultDialer when set.
	Dialer *gorilla.Dialer

	// Logger receives connection lifecycle and dispatch events.
	// Nil falls back to a timestamped stdout logger.
	Logger *zerolog.Logger

	// BackoffFloor and BackoffCap bound the reconnect delay. Zero values
	// take the defaults; tests shrink them to keep reconnects fast.
	BackoffFloor time.Duration
	BackoffCap   time.Duration
}

func (cfg Config) dialer() *gorilla.Dialer {
	if cfg.Dialer != nil {
		return cfg.Dialer
	}
	return DefaultDialer
}

func (cfg Config) makeLogger() zerolog.Logger {
	if cfg.Logger != nil {
		return *cfg.Logger
	}
	return logger.Default()
}

func (cfg Config) backoffFloor() time.Duration {
	if cfg.BackoffFloor > 0 {
		return cfg.BackoffFloor
	}
	return DefaultBackoffFloor
}

func (cfg Config) backoffCap() time.Duration {
	if cfg.BackoffCap > 0 {
		return cfg.BackoffCap
	}
	return DefaultBackoffCap
}
