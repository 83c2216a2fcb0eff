package machine

import (
	"context"
	"time"

	"clockmesh"
)

// Clock abstracts time.Now() for deterministic testing of event
// timestamps.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Rand is the scheduler's randomness source.
// Production: math/rand/v2 Rand. Testing: a scripted fake.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// Sender is the outbound half of the machine.
// Production: conn.Manager. Testing: an in-memory fake.
type Sender interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, target clockmesh.MachineID, msg clockmesh.Message) error
	Broadcast(ctx context.Context, msg clockmesh.Message) error
	PeerIDs() []clockmesh.MachineID
	Close() error
}
