// Package inbound holds a machine's receive side: the FIFO message queue
// shared between listener and scheduler, and the listener that fills it.
package inbound

import (
	"sync"

	"clockmesh"
)

// Queue buffers received messages in strict arrival order across all
// senders. Push is called by listener goroutines, Pop and Len by the
// scheduler; Len never blocks beyond the mutex.
type Queue struct {
	mu   sync.Mutex
	msgs []clockmesh.Message
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends msg at the tail.
func (q *Queue) Push(msg clockmesh.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
}

// Pop removes and returns the earliest message. The bool is false when
// the queue is empty.
func (q *Queue) Pop() (clockmesh.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.msgs) == 0 {
		return clockmesh.Message{}, false
	}
	msg := q.msgs[0]
	q.msgs = q.msgs[1:]
	return msg, true
}

// Len reports the number of buffered messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}
