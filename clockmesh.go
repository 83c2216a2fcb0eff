package clockmesh

import (
	"fmt"
	"time"
)

// MachineID identifies one virtual machine within an experiment.
type MachineID int

// Message is one unit on the wire: the sender's identity and its logical
// clock at the moment of sending. Immutable once sent.
type Message struct {
	Sender MachineID
	Clock  int64
}

// PeerRecord is one entry in a machine's fixed peer set, established at
// startup and never changed during a run.
type PeerRecord struct {
	ID   MachineID
	Addr string // host:port the peer listens on
}

// EventType classifies a processed event.
type EventType uint8

const (
	EventInternal EventType = iota + 1
	EventSend
	EventReceive
	// EventStop is the final record of a run, carrying the terminal clock.
	EventStop
)

func (t EventType) String() string {
	switch t {
	case EventInternal:
		return "INTERNAL"
	case EventSend:
		return "SEND"
	case EventReceive:
		return "RECEIVE"
	case EventStop:
		return "STOP"
	default:
		return "unknown"
	}
}

// ParseEventType is the inverse of EventType.String.
func ParseEventType(s string) (EventType, error) {
	switch s {
	case "INTERNAL":
		return EventInternal, nil
	case "SEND":
		return EventSend, nil
	case "RECEIVE":
		return EventReceive, nil
	case "STOP":
		return EventStop, nil
	default:
		return 0, fmt.Errorf("unknown event type %q", s)
	}
}

// EventRecord is one processed event as seen by the analysis tooling.
// QueueLen is the queue length after dequeue and is meaningful only for
// EventReceive.
type EventRecord struct {
	Timestamp time.Time
	Machine   MachineID
	Type      EventType
	Clock     int64
	QueueLen  int
}

// EventSink consumes one machine's event records. Each machine writes to
// its own private sink; implementations are never shared between machines.
// Record is called from the machine's scheduler goroutine only.
type EventSink interface {
	Record(rec EventRecord)
	Close() error
}

// SendPolicy fixes how a SEND event picks its targets for the whole run.
type SendPolicy uint8

const (
	// SendRandomPeer sends each message to one uniformly chosen peer.
	SendRandomPeer SendPolicy = iota + 1
	// SendBroadcast sends each message to every peer.
	SendBroadcast
)

func (p SendPolicy) String() string {
	switch p {
	case SendRandomPeer:
		return "random"
	case SendBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// ParseSendPolicy parses a policy name as written in config files.
// The empty string means SendRandomPeer.
func ParseSendPolicy(s string) (SendPolicy, error) {
	switch s {
	case "", "random":
		return SendRandomPeer, nil
	case "broadcast":
		return SendBroadcast, nil
	default:
		return 0, fmt.Errorf("unknown send policy %q", s)
	}
}
