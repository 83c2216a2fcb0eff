package machine

import (
	"context"
	"time"

	"clockmesh"
	"clockmesh/internal/check"
)

// loop ticks at the machine's configured rate until ctx is cancelled.
// The stop signal is checked only at tick boundaries, so an in-flight
// event always completes before the machine moves to Stopping.
func (m *Machine) loop(ctx context.Context) {
	period := time.Second / time.Duration(m.cfg.ClockRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.step(ctx)
		}
	}
}

// step processes exactly one event: drain the queue if non-empty,
// otherwise roll for send vs internal.
func (m *Machine) step(ctx context.Context) {
	switch Decide(m.queue.Len() > 0, m.rng.Float64(), m.cfg.SendProbability) {
	case ActionReceive:
		msg, ok := m.queue.Pop()
		// Only the scheduler pops, so a non-empty check cannot go stale.
		check.Assert(ok, "receive decided on empty queue")
		if !ok {
			return
		}
		c := m.engine.Receive(msg.Clock)
		m.emit(clockmesh.EventReceive, c, m.queue.Len())

	case ActionSend:
		c := m.engine.Send()
		m.transmit(ctx, clockmesh.Message{Sender: m.cfg.ID, Clock: c})
		m.emit(clockmesh.EventSend, c, 0)

	case ActionInternal:
		c := m.engine.Internal()
		m.emit(clockmesh.EventInternal, c, 0)
	}
}

// transmit hands the message to the connection manager under the
// configured send policy. Transmission failures drop the message; the
// already-advanced clock stands.
func (m *Machine) transmit(ctx context.Context, msg clockmesh.Message) {
	switch m.cfg.Policy {
	case clockmesh.SendBroadcast:
		if err := m.sender.Broadcast(ctx, msg); err != nil {
			m.log.Warn("broadcast incomplete", "err", err)
		}
	default:
		ids := m.sender.PeerIDs()
		if len(ids) == 0 {
			return
		}
		target := ids[m.rng.IntN(len(ids))]
		if err := m.sender.Send(ctx, target, msg); err != nil {
			m.log.Warn("send dropped", "peer", target, "err", err)
		}
	}
}

func (m *Machine) emit(typ clockmesh.EventType, clock int64, queueLen int) {
	m.sink.Record(clockmesh.EventRecord{
		Timestamp: m.wall.Now(),
		Machine:   m.cfg.ID,
		Type:      typ,
		Clock:     clock,
		QueueLen:  queueLen,
	})
}

// emitStop writes the final record carrying the terminal clock value.
func (m *Machine) emitStop() {
	m.emit(clockmesh.EventStop, m.engine.Now(), m.queue.Len())
}
