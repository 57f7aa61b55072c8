package channel

import (
	"fmt"
	"time"
)

// TimeoutError is returned by Call when no matching response arrived
// within the call's timeout. The pending entry has been removed by the
// time the caller sees this error.
type TimeoutError struct {
	Action  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no response to %q within %.0f seconds", e.Action, e.Timeout.Seconds())
}

// RemoteError is an explicit failure frame returned by the server.
// Limit, Current and Attempted carry rate-limit context when the server
// supplies it; they are forwarded verbatim and never interpreted here.
type RemoteError struct {
	Message   string
	Code      int
	Limit     *float64
	Current   *float64
	Attempted *float64
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
	}
	return e.Message
}

func (e *RemoteError) Is(target error) bool {
	if target == nil {
		return e == nil
	}

	_, ok := target.(*RemoteError)
	return ok
}
