// Package wallclock checks the host clock against NTP. Event timestamps
// from different machines are compared by the analysis tooling, so a
// large host offset is worth surfacing before a run.
package wallclock

import (
	"time"

	"github.com/beevik/ntp"
)

const (
	DefaultPool      = "pool.ntp.org"
	DefaultThreshold = 500 * time.Millisecond
)

// Status is the outcome of one offset check.
type Status struct {
	Offset    time.Duration
	Healthy   bool
	CheckedAt time.Time
}

// Checker performs one-shot NTP offset checks.
type Checker struct {
	Pool      string
	Threshold time.Duration

	// QueryFunc overrides the NTP query in tests.
	QueryFunc func(pool string) (time.Duration, error)
}

// NewChecker returns a checker with the default pool and threshold.
func NewChecker() *Checker {
	return &Checker{Pool: DefaultPool, Threshold: DefaultThreshold}
}

// Check queries the pool once and classifies the offset. The returned
// error means the query itself failed; callers treat that as a warning,
// never a fatal condition.
func (c *Checker) Check() (Status, error) {
	query := c.QueryFunc
	if query == nil {
		query = func(pool string) (time.Duration, error) {
			resp, err := ntp.Query(pool)
			if err != nil {
				return 0, err
			}
			return resp.ClockOffset, nil
		}
	}

	offset, err := query(c.Pool)
	if err != nil {
		return Status{CheckedAt: time.Now()}, err
	}
	return Status{
		Offset:    offset,
		Healthy:   offset.Abs() < c.Threshold,
		CheckedAt: time.Now(),
	}, nil
}
