package conn

import "clockmesh/internal/check"

// State is the lifecycle of one outbound peer connection.
type State uint8

const (
	Disconnected State = iota + 1
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transition validates a state change and returns the new state.
// Teardown to Disconnected is allowed from anywhere; Failed peers may
// re-enter Connecting when a later send retries them.
func (s State) Transition(to State) State {
	ok := false
	switch s {
	case Disconnected:
		ok = to == Connecting || to == Disconnected
	case Connecting:
		ok = to == Connected || to == Failed || to == Disconnected
	case Connected:
		ok = to == Connecting || to == Disconnected
	case Failed:
		ok = to == Connecting || to == Disconnected
	}
	check.Assertf(ok, "conn transition: %s -> %s", s, to)
	if !ok {
		return s
	}
	return to
}
