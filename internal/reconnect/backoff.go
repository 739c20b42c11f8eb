// Package reconnect redials a dropped connection with exponential backoff,
// running at most one retry loop per connection.
package reconnect

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays. Attempt n (1-based) waits Base·2^(n-1),
// capped at Max when Max > 0, plus a uniform jitter in [0, Jitter).
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
}

// Nominal returns the delay for attempt n without jitter.
func (b Backoff) Nominal(n int) time.Duration {
	if n < 1 {
		n = 1
	}

	d := b.Base
	for i := 1; i < n; i++ {
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
		if d > math.MaxInt64/2 {
			return time.Duration(math.MaxInt64)
		}
		d *= 2
	}

	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Delay returns the jittered delay for attempt n.
func (b Backoff) Delay(n int) time.Duration {
	d := b.Nominal(n)
	if b.Jitter > 0 {
		j := time.Duration(rand.Int64N(int64(b.Jitter)))
		if d > time.Duration(math.MaxInt64)-j {
			return time.Duration(math.MaxInt64)
		}
		d += j
	}
	return d
}
