package channel

import "fmt"

type State int

const (
	StateUnknown State = iota
	StateDisconnected
	StateConnecting
	StateAuthenticating
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

// TransitionTo validates a state change. Any state may fall back to
// Disconnected (transport close and transport error both funnel there);
// forward progress goes Disconnected → Connecting → Authenticating → Ready.
func (s State) TransitionTo(newState State) (State, error) {
	if newState == StateDisconnected {
		return newState, nil
	}

	switch s {
	case StateDisconnected:
		if newState == StateConnecting {
			return newState, nil
		}
	case StateConnecting:
		if newState == StateAuthenticating {
			return newState, nil
		}
	case StateAuthenticating:
		if newState == StateReady {
			return newState, nil
		}
	}

	return StateUnknown, fmt.Errorf("invalid state transition from %v to %v", s, newState)
}
