// Package retry decides whether and when a failed unit of work is attempted
// again under a bounded attempt/backoff schedule.
package retry

import (
	"time"

	"permohonan-service/internal/common/errors"
)

// Policy describes how many times work is attempted and how long to wait
// between attempts. Backoff[i] is the delay after the (i+1)th failed attempt;
// the last entry repeats if MaxAttempts exceeds len(Backoff)+1.
type Policy struct {
	MaxAttempts int
	Backoff     []time.Duration
}

// DefaultPolicy is three attempts spaced roughly 1s, 5s, 15s apart.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{1 * time.Second, 5 * time.Second, 15 * time.Second},
	}
}

// Attempts is MaxAttempts clamped to at least one.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 || attempt < 1 {
		return 0
	}
	if attempt > len(p.Backoff) {
		return p.Backoff[len(p.Backoff)-1]
	}
	return p.Backoff[attempt-1]
}

// Next reports whether attempt (1-based), which failed with err, is followed
// by another one and how long to wait before it. Non-retryable errors and the
// last allowed attempt are final.
func (p Policy) Next(attempt int, err error) (time.Duration, bool) {
	if err == nil || !errors.IsRetryable(err) || attempt >= p.Attempts() {
		return 0, false
	}
	return p.Delay(attempt), true
}
