package crow

import (
	"math/rand"
	"time"
)

// Default backoff parameters, used when config values are zero.
const (
	defaultBackoffBase       = 1 * time.Second
	defaultBackoffMultiplier = 2.0
	defaultBackoffMax        = 60 * time.Second
)

// Backoff computes retry delays: base * multiplier^attempt, clamped
// to Max. When Jitter is set the returned delay is drawn uniformly
// from [0, delay] so many clients retrying at once do not synchronise.
//
// Attempt 0 is the first retry; the initial call is never delayed.
// A Backoff value is immutable and safe for concurrent use.
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
	Jitter     bool
}

// withDefaults fills zero fields with the package defaults.
func (b Backoff) withDefaults() Backoff {
	if b.Base <= 0 {
		b.Base = defaultBackoffBase
	}
	if b.Multiplier < 1 {
		b.Multiplier = defaultBackoffMultiplier
	}
	if b.Max <= 0 {
		b.Max = defaultBackoffMax
	}
	return b
}

// DelayFor returns the wait before retry number attempt (0-based).
func (b Backoff) DelayFor(attempt int) time.Duration {
	b = b.withDefaults()

	delay := float64(b.Base)
	for i := 0; i < attempt; i++ {
		delay *= b.Multiplier
		if delay >= float64(b.Max) {
			break
		}
	}
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	d := time.Duration(delay)
	if b.Jitter && d > 0 {
		d = time.Duration(rand.Int63n(int64(d) + 1))
	}
	return d
}
