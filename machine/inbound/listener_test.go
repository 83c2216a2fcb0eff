package inbound

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"clockmesh"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startListener(t *testing.T) (*Listener, *Queue) {
	t.Helper()
	q := NewQueue()
	l := NewListener(q, discardLogger())
	if err := l.Start("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Stop() })
	return l, q
}

func waitForQueue(t *testing.T, q *Queue, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for q.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("queue length %d, want %d", q.Len(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestListenerDecodesIntoQueue(t *testing.T) {
	l, q := startListener(t)

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("1 5\n1 6\n")); err != nil {
		t.Fatal(err)
	}
	waitForQueue(t, q, 2)

	first, _ := q.Pop()
	second, _ := q.Pop()
	if first.Clock != 5 || second.Clock != 6 {
		t.Errorf("dequeued clocks %d, %d; want 5, 6", first.Clock, second.Clock)
	}
	if first.Sender != 1 {
		t.Errorf("sender = %d, want 1", first.Sender)
	}
}

func TestListenerDropsMalformedKeepsConnection(t *testing.T) {
	l, q := startListener(t)

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// A garbage line followed by a valid one on the same connection.
	if _, err := conn.Write([]byte("not a message\n2 9\n")); err != nil {
		t.Fatal(err)
	}
	waitForQueue(t, q, 1)

	msg, _ := q.Pop()
	want := clockmesh.Message{Sender: 2, Clock: 9}
	if msg != want {
		t.Errorf("queued %+v, want %+v", msg, want)
	}
	if q.Len() != 0 {
		t.Errorf("malformed line was queued")
	}
}

func TestListenerArrivalOrderFromMultipleSenders(t *testing.T) {
	l, q := startListener(t)

	a, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if _, err := a.Write([]byte("1 1\n1 2\n")); err != nil {
		t.Fatal(err)
	}
	waitForQueue(t, q, 2)
	if _, err := b.Write([]byte("2 7\n")); err != nil {
		t.Fatal(err)
	}
	waitForQueue(t, q, 3)

	var fromA []int64
	for {
		msg, ok := q.Pop()
		if !ok {
			break
		}
		if msg.Sender == 1 {
			fromA = append(fromA, msg.Clock)
		}
	}
	if len(fromA) != 2 || fromA[0] != 1 || fromA[1] != 2 {
		t.Errorf("sender 1 order = %v, want [1 2]", fromA)
	}
}

func TestListenerStopJoinsAndCloses(t *testing.T) {
	q := NewQueue()
	l := NewListener(q, discardLogger())
	if err := l.Start("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	addr := l.Addr().String()
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop() = %v", err)
	}

	// The port must be released after Stop returns.
	if _, err := net.DialTimeout("tcp", addr, 100*time.Millisecond); err == nil {
		t.Error("listener still accepting after Stop")
	}
}
