package conn

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"clockmesh"
	"clockmesh/internal/retry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// acceptLines accepts a single connection and forwards its lines.
func acceptLines(t *testing.T, ln net.Listener, lines chan<- string) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
}

func fastRetry() Option {
	return WithRetryPolicy(retry.Policy{Attempts: 3, Delay: 10 * time.Millisecond})
}

func TestConnectAndSend(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	lines := make(chan string, 1)
	acceptLines(t, ln, lines)

	m := NewManager([]clockmesh.PeerRecord{{ID: 2, Addr: ln.Addr().String()}}, discardLogger(), fastRetry())
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() = %v", err)
	}
	if got := m.PeerState(2); got != Connected {
		t.Fatalf("PeerState(2) = %s, want connected", got)
	}

	if err := m.Send(context.Background(), 2, clockmesh.Message{Sender: 1, Clock: 4}); err != nil {
		t.Fatalf("Send() = %v", err)
	}

	select {
	case line := <-lines:
		if line != "1 4" {
			t.Errorf("peer received %q, want %q", line, "1 4")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer never received the message")
	}
}

// A peer whose listener comes up late is still reached within the retry
// window.
func TestConnectRetriesUntilListenerReady(t *testing.T) {
	// Reserve an address, then free it so the first dial attempts fail.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		late, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		defer late.Close()
		conn, err := late.Accept()
		if err == nil {
			defer conn.Close()
		}
		time.Sleep(time.Second)
	}()

	m := NewManager([]clockmesh.PeerRecord{{ID: 3, Addr: addr}}, discardLogger(),
		WithRetryPolicy(retry.Policy{Attempts: 10, Delay: 25 * time.Millisecond}))
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() = %v, want success after listener came up", err)
	}
	if got := m.PeerState(3); got != Connected {
		t.Errorf("PeerState(3) = %s, want connected", got)
	}
}

func TestConnectMarksUnreachablePeerFailed(t *testing.T) {
	// Grab and close a port; nothing will be listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	m := NewManager([]clockmesh.PeerRecord{{ID: 2, Addr: addr}}, discardLogger(), fastRetry())
	if err := m.Connect(context.Background()); err == nil {
		t.Fatal("Connect() = nil, want error for unreachable peer")
	}
	if got := m.PeerState(2); got != Failed {
		t.Errorf("PeerState(2) = %s, want failed", got)
	}
}

// A send to a dead connection gets exactly one reconnect attempt; once the
// listener is back, the send goes through on the new connection.
func TestSendReconnectsOnceOnWriteFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()

	// First connection: accept and immediately close so a later write fails.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = conn.Close()
	}()

	var dials atomic.Int32
	base := &net.Dialer{Timeout: time.Second}
	m := NewManager([]clockmesh.PeerRecord{{ID: 2, Addr: addr}}, discardLogger(), fastRetry(),
		WithDialer(func(ctx context.Context, a string) (net.Conn, error) {
			dials.Add(1)
			return base.DialContext(ctx, "tcp", a)
		}))
	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	lines := make(chan string, 1)
	acceptLines(t, ln, lines)
	defer ln.Close()

	// TCP may need a couple of writes before the peer's close surfaces,
	// so keep sending until the write error triggers the reconnect.
	deadline := time.Now().Add(2 * time.Second)
	for {
		err = m.Send(context.Background(), 2, clockmesh.Message{Sender: 1, Clock: 9})
		if dials.Load() > 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Send() after reconnect = %v", err)
	}
	if dials.Load() != 2 {
		t.Errorf("dial count = %d, want 2 (initial connect + one reconnect)", dials.Load())
	}
	if got := m.PeerState(2); got != Connected {
		t.Errorf("PeerState(2) = %s, want connected", got)
	}
}

func TestSendToUnreachablePeerDropsAfterOneReconnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	var dials atomic.Int32
	base := &net.Dialer{Timeout: 200 * time.Millisecond}
	m := NewManager([]clockmesh.PeerRecord{{ID: 2, Addr: addr}}, discardLogger(),
		WithRetryPolicy(retry.Policy{Attempts: 1, Delay: time.Millisecond}),
		WithDialer(func(ctx context.Context, a string) (net.Conn, error) {
			dials.Add(1)
			return base.DialContext(ctx, "tcp", a)
		}))
	_ = m.Connect(context.Background())
	dials.Store(0)

	if err := m.Send(context.Background(), 2, clockmesh.Message{Sender: 1, Clock: 1}); err == nil {
		t.Fatal("Send() = nil, want error for unreachable peer")
	}
	if dials.Load() != 1 {
		t.Errorf("reconnect dials = %d, want exactly 1", dials.Load())
	}
	if got := m.PeerState(2); got != Failed {
		t.Errorf("PeerState(2) = %s, want failed", got)
	}
}

func TestBroadcastReachesAllPeers(t *testing.T) {
	var peers []clockmesh.PeerRecord
	chans := make(map[clockmesh.MachineID]chan string)
	for id := clockmesh.MachineID(2); id <= 3; id++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		defer ln.Close()
		lines := make(chan string, 1)
		acceptLines(t, ln, lines)
		peers = append(peers, clockmesh.PeerRecord{ID: id, Addr: ln.Addr().String()})
		chans[id] = lines
	}

	m := NewManager(peers, discardLogger(), fastRetry())
	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Broadcast(context.Background(), clockmesh.Message{Sender: 1, Clock: 3}); err != nil {
		t.Fatalf("Broadcast() = %v", err)
	}

	for id, lines := range chans {
		select {
		case line := <-lines:
			if line != "1 3" {
				t.Errorf("peer %d received %q, want %q", id, line, "1 3")
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("peer %d never received the broadcast", id)
		}
	}
}

func TestCloseDisconnectsAll(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			if _, err := ln.Accept(); err != nil {
				return
			}
		}
	}()

	m := NewManager([]clockmesh.PeerRecord{{ID: 2, Addr: ln.Addr().String()}}, discardLogger(), fastRetry())
	if err := m.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if got := m.PeerState(2); got != Disconnected {
		t.Errorf("PeerState(2) = %s after Close, want disconnected", got)
	}
}
