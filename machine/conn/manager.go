// Package conn maintains a machine's outbound connections: one
// persistent byte stream per peer in the mesh.
package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"clockmesh"
	"clockmesh/internal/retry"
	"clockmesh/wire"
)

const (
	defaultDialTimeout  = 2 * time.Second
	defaultWriteTimeout = 2 * time.Second
)

// DefaultRetry covers the start-of-simulation race where a peer's
// listener is not up yet: five attempts a second apart.
var DefaultRetry = retry.Policy{Attempts: 5, Delay: time.Second}

// Dialer opens the transport to a peer address. Production is TCP with a
// bounded timeout; tests inject fakes or point at local listeners.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

type peer struct {
	record clockmesh.PeerRecord
	conn   net.Conn
	state  State
}

// Manager owns the peer-connection map. The map is guarded by mu; the
// lock is held only for map and state updates, never across dial or
// write I/O, so an unreachable peer cannot stall sends to the others.
type Manager struct {
	log          *slog.Logger
	dial         Dialer
	policy       retry.Policy
	writeTimeout time.Duration

	mu    sync.Mutex
	peers map[clockmesh.MachineID]*peer
}

// Option configures a Manager. Use these to inject test dependencies.
type Option func(*Manager)

// WithDialer injects the transport dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dial = d }
}

// WithRetryPolicy overrides the initial-connect retry bounds.
func WithRetryPolicy(p retry.Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithWriteTimeout overrides the per-write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(m *Manager) { m.writeTimeout = d }
}

// NewManager creates a manager for the given fixed peer set.
func NewManager(peers []clockmesh.PeerRecord, log *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		log:          log,
		policy:       DefaultRetry,
		writeTimeout: defaultWriteTimeout,
		peers:        make(map[clockmesh.MachineID]*peer, len(peers)),
	}
	for _, rec := range peers {
		m.peers[rec.ID] = &peer{record: rec, state: Disconnected}
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dial == nil {
		d := &net.Dialer{Timeout: defaultDialTimeout}
		m.dial = func(ctx context.Context, addr string) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", addr)
		}
	}
	return m
}

// Connect establishes a connection to every peer, retrying each within
// the retry policy. Peers that stay unreachable are marked Failed and
// reported in the joined error; this is non-fatal to the caller, which
// keeps running with a reduced peer set.
func (m *Manager) Connect(ctx context.Context) error {
	var errs []error
	for _, id := range m.PeerIDs() {
		if err := m.connectPeer(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("peer %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) connectPeer(ctx context.Context, id clockmesh.MachineID) error {
	m.mu.Lock()
	p := m.peers[id]
	addr := p.record.Addr
	p.state = p.state.Transition(Connecting)
	m.mu.Unlock()

	var c net.Conn
	err := retry.Do(ctx, m.policy, func(ctx context.Context) error {
		var dialErr error
		c, dialErr = m.dial(ctx, addr)
		return dialErr
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		p.state = p.state.Transition(Failed)
		m.log.Error("peer unreachable, continuing without it", "peer", id, "addr", addr, "err", err)
		return err
	}
	p.conn = c
	p.state = p.state.Transition(Connected)
	m.log.Info("connected to peer", "peer", id, "addr", addr)
	return nil
}

// Send writes msg to the target peer. On write failure (or a previously
// failed peer) it makes exactly one reconnect attempt; if that fails too,
// the message is dropped and the error returned. The caller's clock is
// never adjusted for a dropped send.
func (m *Manager) Send(ctx context.Context, target clockmesh.MachineID, msg clockmesh.Message) error {
	m.mu.Lock()
	p, ok := m.peers[target]
	var c net.Conn
	if ok {
		c = p.conn
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("send to unknown peer %d", target)
	}

	payload := wire.Encode(msg)

	if c != nil {
		err := m.write(c, payload)
		if err == nil {
			return nil
		}
		m.log.Warn("send failed, attempting reconnect", "peer", target, "err", err)
	}

	return m.reconnectAndSend(ctx, p, payload)
}

// Broadcast sends msg to every peer. Per-peer failures are joined; a
// partial broadcast is not rolled back.
func (m *Manager) Broadcast(ctx context.Context, msg clockmesh.Message) error {
	var errs []error
	for _, id := range m.PeerIDs() {
		if err := m.Send(ctx, id, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// reconnectAndSend is the single mid-run reconnect attempt. The dial and
// write happen outside the lock; only the map swap is guarded.
func (m *Manager) reconnectAndSend(ctx context.Context, p *peer, payload []byte) error {
	m.mu.Lock()
	addr := p.record.Addr
	id := p.record.ID
	old := p.conn
	p.conn = nil
	p.state = p.state.Transition(Connecting)
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	c, err := m.dial(dialCtx, addr)
	if err != nil {
		m.fail(p)
		m.log.Error("reconnect failed, message dropped", "peer", id, "err", err)
		return fmt.Errorf("reconnect peer %d: %w", id, err)
	}

	if err := m.write(c, payload); err != nil {
		_ = c.Close()
		m.fail(p)
		m.log.Error("send after reconnect failed, message dropped", "peer", id, "err", err)
		return fmt.Errorf("send to peer %d after reconnect: %w", id, err)
	}

	m.mu.Lock()
	p.conn = c
	p.state = p.state.Transition(Connected)
	m.mu.Unlock()
	m.log.Info("reconnected to peer", "peer", id)
	return nil
}

func (m *Manager) fail(p *peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.state = p.state.Transition(Failed)
}

func (m *Manager) write(c net.Conn, payload []byte) error {
	if err := c.SetWriteDeadline(time.Now().Add(m.writeTimeout)); err != nil {
		return err
	}
	_, err := c.Write(payload)
	return err
}

// PeerIDs returns the configured peer ids in stable order.
func (m *Manager) PeerIDs() []clockmesh.MachineID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]clockmesh.MachineID, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PeerState reports the connection state for one peer.
func (m *Manager) PeerState(id clockmesh.MachineID) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[id]
	if !ok {
		return Disconnected
	}
	return p.state
}

// Close tears down every connection. Close errors are joined and
// reported but never block shutdown.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, p := range m.peers {
		if p.conn != nil {
			if err := p.conn.Close(); err != nil {
				errs = append(errs, err)
			}
			p.conn = nil
		}
		p.state = p.state.Transition(Disconnected)
	}
	return errors.Join(errs...)
}
