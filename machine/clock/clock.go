// Package clock implements the Lamport logical clock owned by one machine.
package clock

// Engine holds a machine's logical clock. It is written only through the
// three update rules, and only by the owning machine's scheduler
// goroutine — no lock on the clock itself. Every rule strictly increases
// the clock.
type Engine struct {
	now int64
}

// New returns an engine with the clock at zero.
func New() *Engine {
	return &Engine{}
}

// Internal applies the local-event rule and returns the new clock.
func (e *Engine) Internal() int64 {
	e.now++
	return e.now
}

// Send applies the send rule and returns the new clock, which the caller
// embeds in the outgoing message. The clock is never rolled back if the
// transmission later fails.
func (e *Engine) Send() int64 {
	e.now++
	return e.now
}

// Receive applies Lamport's receive rule for a message carrying remote:
// the clock becomes max(local, remote) + 1, strictly greater than both.
func (e *Engine) Receive(remote int64) int64 {
	if remote > e.now {
		e.now = remote
	}
	e.now++
	return e.now
}

// Now returns the current clock without changing it.
func (e *Engine) Now() int64 {
	return e.now
}
