package channel

import (
	"errors"
	"time"
)

const (
	// RequestIDPrefixLength size of the random prefix on correlation ids
	RequestIDPrefixLength = 8
	// CloseMessageCode identifier the message id for a close request
	CloseMessageCode = 1000

	// DefaultCallTimeout is how long a call waits for its response.
	DefaultCallTimeout = 30 * time.Second
	// GenerateCallTimeout is the longer window used for image generation,
	// where provider latency routinely exceeds the default.
	GenerateCallTimeout = 120 * time.Second

	// DefaultBackoffFloor is the reconnect delay after the first failure.
	DefaultBackoffFloor = 500 * time.Millisecond
	// DefaultBackoffCap bounds the doubling reconnect delay.
	DefaultBackoffCap = 16 * time.Second
)

const authFrameType = "auth"

var (
	ErrIDInUse       = errors.New("id already in use")
	ErrNotConnected  = errors.New("not connected")
	ErrChannelClosed = errors.New("channel closed")
	ErrNoURL         = errors.New("url not set")
)
