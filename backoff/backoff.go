// Package backoff provides delays between retry attempts.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Backoff returns the delay before the given retry attempt, starting at 1.
type Backoff func(attempt uint64) time.Duration

// DefaultBackoff is the Backoff used for reconnecting to the event source, between 128ms and 1m.
var DefaultBackoff = NewExponentialWithJitter(128*time.Millisecond, time.Minute)

// NewExponentialWithJitter returns a Backoff doubling the delay with every attempt.
//
// Delays are randomized into the upper half of each step and clamped to [min, max].
// Non-positive min and max default to 100ms and 10s, respectively. It panics if min >= max.
func NewExponentialWithJitter(lo, hi time.Duration) Backoff {
	if lo <= 0 {
		lo = 100 * time.Millisecond
	}
	if hi <= 0 {
		hi = 10 * time.Second
	}
	if lo >= hi {
		panic("max must be greater than min")
	}

	return func(attempt uint64) time.Duration {
		d := lo << attempt
		if d < lo {
			// Overflow.
			return hi
		}

		if half := d / 2; half > 0 {
			d = half + rand.N(half) // #nosec G404 -- jitter does not need crypto/rand
		}

		return max(lo, min(d, hi))
	}
}
