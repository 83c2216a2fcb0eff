package machine

import "clockmesh/internal/check"

// Phase describes the machine lifecycle state.
type Phase uint8

const (
	PhaseStarting Phase = iota + 1
	PhaseRunning
	PhaseStopping
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Transition validates a phase change and returns the new phase.
// The lifecycle is linear: Starting → Running → Stopping → Stopped.
// Starting → Stopping is allowed when startup is aborted; Stopped is
// terminal.
func (p Phase) Transition(to Phase) Phase {
	ok := false
	switch p {
	case PhaseStarting:
		ok = to == PhaseRunning || to == PhaseStopping
	case PhaseRunning:
		ok = to == PhaseStopping
	case PhaseStopping:
		ok = to == PhaseStopped
	case PhaseStopped:
		ok = false
	}
	check.Assertf(ok, "machine transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}
