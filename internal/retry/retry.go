// Package retry provides the bounded, cancellable retry primitive shared
// by initial peer connects and mid-run reconnects.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds a retry loop. Attempts is the total number of calls,
// Delay the pause between consecutive calls.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Do calls fn until it succeeds, the policy is exhausted, or ctx is
// cancelled. The delay between attempts is interruptible by ctx.
// On exhaustion the last error is returned wrapped with the attempt count.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	var last error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		if attempt == p.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}
	return fmt.Errorf("after %d attempts: %w", p.Attempts, last)
}
