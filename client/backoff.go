package client

import "time"

// Backoff yields growing reconnect delays.
// First Next() returns Min, each following call multiplies by Factor up to Max.
// Reset starts over after a session reached the active state.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64

	next time.Duration
}

func NewBackoff(min, max time.Duration, factor float64) *Backoff {
	return &Backoff{Min: min, Max: max, Factor: factor}
}

func (b *Backoff) Next() time.Duration {
	if b.next == 0 {
		b.next = b.Min
	}
	d := b.limit(b.next)

	factor := b.Factor
	if factor < 1 {
		factor = 2
	}
	b.next = b.limit(time.Duration(float64(d) * factor))
	return d
}

func (b *Backoff) Reset() {
	b.next = 0
}

func (b *Backoff) limit(d time.Duration) time.Duration {
	if d < b.Min {
		d = b.Min
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}
