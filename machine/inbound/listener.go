package inbound

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"clockmesh/wire"
)

// Listener accepts connections from peers and decodes inbound messages
// into the queue. It owns its goroutine lifecycle via Start/Stop; only
// the queue is shared with the scheduler.
type Listener struct {
	queue *Queue
	log   *slog.Logger

	ln net.Listener
	wg sync.WaitGroup

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// NewListener creates a listener feeding queue. log must not be nil.
func NewListener(queue *Queue, log *slog.Logger) *Listener {
	return &Listener{
		queue: queue,
		log:   log,
		conns: make(map[net.Conn]struct{}),
	}
}

// Start binds addr and launches the accept loop in a background goroutine.
func (l *Listener) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	l.ln = ln

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.acceptLoop()
	}()
	return nil
}

// Addr returns the bound address. Valid after Start.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Stop closes the listener and every inbound connection, then waits for
// all spawned goroutines to exit.
func (l *Listener) Stop() error {
	l.mu.Lock()
	l.closed = true
	for c := range l.conns {
		_ = c.Close()
	}
	l.mu.Unlock()

	var err error
	if l.ln != nil {
		err = l.ln.Close()
	}
	l.wg.Wait()
	return err
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if !l.isClosed() {
				l.log.Error("accept failed", "err", err)
			}
			return
		}

		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			_ = conn.Close()
			return
		}
		l.conns[conn] = struct{}{}
		l.mu.Unlock()

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(conn)
		}()
	}
}

// handle decodes protocol lines from one peer connection until it closes.
// Malformed lines are logged and dropped; the connection stays open.
func (l *Listener) handle(conn net.Conn) {
	defer func() {
		l.mu.Lock()
		delete(l.conns, conn)
		l.mu.Unlock()
		_ = conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		msg, err := wire.Decode(scanner.Text())
		if err != nil {
			l.log.Warn("dropping malformed message", "remote", conn.RemoteAddr(), "err", err)
			continue
		}
		l.queue.Push(msg)
	}

	if err := scanner.Err(); err != nil && !l.isClosed() {
		l.log.Warn("peer connection read failed", "remote", conn.RemoteAddr(), "err", err)
	}
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
