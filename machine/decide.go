package machine

// Action is what the scheduler does on one tick.
type Action uint8

const (
	ActionReceive Action = iota + 1
	ActionSend
	ActionInternal
)

func (a Action) String() string {
	switch a {
	case ActionReceive:
		return "receive"
	case ActionSend:
		return "send"
	case ActionInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Decide picks the action for one tick. Draining the queue always wins
// over generating new work: a machine does not originate new
// causally-ordered activity while unseen messages are pending. Otherwise
// a uniform draw in [0,1) against sendProbability picks send vs internal.
func Decide(queueNonEmpty bool, draw, sendProbability float64) Action {
	if queueNonEmpty {
		return ActionReceive
	}
	if draw < sendProbability {
		return ActionSend
	}
	return ActionInternal
}
