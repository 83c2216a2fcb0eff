package machine

import (
	"context"
	"errors"
	"fmt"
)

// Run drives the machine through its full lifecycle: bring up the
// listener, connect to every peer, tick until ctx is cancelled, then
// tear everything down. The final event record carrying the terminal
// clock is emitted before the machine reports Stopped.
//
// Unreachable peers are logged and skipped; the machine runs with a
// reduced peer set rather than failing.
func (m *Machine) Run(ctx context.Context) error {
	if err := m.listener.Start(m.cfg.ListenAddr); err != nil {
		m.setPhase(PhaseStopping)
		m.shutdown()
		return fmt.Errorf("machine %d: %w", m.cfg.ID, err)
	}

	if err := m.sender.Connect(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			m.setPhase(PhaseStopping)
			m.shutdown()
			return nil
		}
		m.log.Warn("running with reduced peer set", "err", err)
	}

	m.setPhase(PhaseRunning)
	m.log.Info("machine running", "rate", m.cfg.ClockRate, "addr", m.listener.Addr())
	m.signalStarted()

	m.loop(ctx)

	m.setPhase(PhaseStopping)
	m.shutdown()
	return nil
}

// shutdown releases all owned resources and flushes the event log.
// Release failures are logged, never fatal. Ends in PhaseStopped.
func (m *Machine) shutdown() {
	m.signalStarted()
	if err := m.sender.Close(); err != nil {
		m.log.Error("closing peer connections", "err", err)
	}
	if err := m.listener.Stop(); err != nil {
		m.log.Error("stopping listener", "err", err)
	}

	m.emitStop()
	if err := m.sink.Close(); err != nil {
		m.log.Error("closing event sink", "err", err)
	}

	m.setPhase(PhaseStopped)
	m.log.Info("machine stopped", "clock", m.engine.Now())
}
