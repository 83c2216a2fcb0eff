package machine

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"clockmesh"
	"clockmesh/machine/clock"
	"clockmesh/machine/conn"
	"clockmesh/machine/inbound"
)

// Config is everything a machine needs to run. The peer set and send
// policy are fixed for the whole run.
type Config struct {
	ID              clockmesh.MachineID
	ClockRate       int    // ticks per second, 1-6
	ListenAddr      string // host:port for the inbound listener
	Peers           []clockmesh.PeerRecord
	SendProbability float64
	Policy          clockmesh.SendPolicy
}

// Validate checks the configured ranges.
func (c Config) Validate() error {
	if c.ClockRate < 1 || c.ClockRate > 6 {
		return fmt.Errorf("machine %d: clock rate %d out of range 1-6", c.ID, c.ClockRate)
	}
	if c.SendProbability < 0 || c.SendProbability > 1 {
		return fmt.Errorf("machine %d: send probability %v out of range [0,1]", c.ID, c.SendProbability)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("machine %d: listen address is empty", c.ID)
	}
	return nil
}

// Machine is one virtual machine. It owns its logical clock, inbound
// queue, listener, and peer connections; nothing mutable is shared with
// other machines except via the network.
type Machine struct {
	cfg  Config
	log  *slog.Logger
	sink clockmesh.EventSink

	engine   *clock.Engine
	queue    *inbound.Queue
	listener *inbound.Listener
	sender   Sender
	rng      Rand
	wall     Clock
	connOpts []conn.Option

	mu    sync.Mutex
	phase Phase

	// started is closed once startup has resolved, successfully or not,
	// so waiters never block on a machine that failed to come up.
	started   chan struct{}
	startOnce sync.Once
}

// Option configures a Machine. Use these to inject test dependencies.
type Option func(*Machine)

// WithLogger sets the machine's diagnostic logger (not the event sink).
func WithLogger(log *slog.Logger) Option {
	return func(m *Machine) { m.log = log }
}

// WithSender injects the outbound transport.
func WithSender(s Sender) Option {
	return func(m *Machine) { m.sender = s }
}

// WithRand injects the scheduler's randomness source.
func WithRand(r Rand) Option {
	return func(m *Machine) { m.rng = r }
}

// WithWallClock injects the timestamp source for event records.
func WithWallClock(c Clock) Option {
	return func(m *Machine) { m.wall = c }
}

// WithConnOptions forwards options to the default connection manager.
// Ignored when WithSender is used.
func WithConnOptions(opts ...conn.Option) Option {
	return func(m *Machine) { m.connOpts = opts }
}

// New creates a machine writing its events to sink. Defaults are
// production ones; use options to inject test dependencies.
func New(cfg Config, sink clockmesh.EventSink, opts ...Option) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, fmt.Errorf("machine %d: event sink is required", cfg.ID)
	}

	m := &Machine{
		cfg:     cfg,
		sink:    sink,
		engine:  clock.New(),
		queue:   inbound.NewQueue(),
		phase:   PhaseStarting,
		started: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.log == nil {
		m.log = slog.Default().With("machine", int(cfg.ID))
	}
	if m.wall == nil {
		m.wall = RealClock{}
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewPCG(uint64(cfg.ID), rand.Uint64()))
	}
	m.listener = inbound.NewListener(m.queue, m.log)
	if m.sender == nil {
		m.sender = conn.NewManager(cfg.Peers, m.log, m.connOpts...)
	}
	return m, nil
}

// ID returns the machine's identifier.
func (m *Machine) ID() clockmesh.MachineID {
	return m.cfg.ID
}

// Phase returns the current lifecycle phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Started returns a channel closed once startup has resolved. Check
// Phase to distinguish a running machine from one that failed to start.
func (m *Machine) Started() <-chan struct{} {
	return m.started
}

func (m *Machine) signalStarted() {
	m.startOnce.Do(func() { close(m.started) })
}

// LogicalClock returns the clock value. Only stable once the machine is
// Stopped; during a run it belongs to the scheduler goroutine.
func (m *Machine) LogicalClock() int64 {
	return m.engine.Now()
}

// QueueLen reports the inbound queue length.
func (m *Machine) QueueLen() int {
	return m.queue.Len()
}

func (m *Machine) setPhase(to Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = m.phase.Transition(to)
}
