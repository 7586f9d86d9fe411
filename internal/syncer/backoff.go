package syncer

import (
	"math"
	"math/rand"
	"time"
)

// Default backoff parameters.
const (
	DefaultBackoffBase = time.Second
	DefaultBackoffCap  = 16 * time.Second
	DefaultJitter      = 0.2
)

// Backoff computes retry delays: min(Base*2^n, Cap), scaled by a random
// factor in [1-Jitter, 1+Jitter].
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter float64

	// Rand returns a value in [0, 1). Defaults to math/rand.
	Rand func() float64
}

// DefaultBackoff returns 1s doubling to 16s with 20% jitter.
func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBackoffBase, Cap: DefaultBackoffCap, Jitter: DefaultJitter}
}

// Nominal returns the un-jittered delay before retry n (0-based).
func (b Backoff) Nominal(n int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	d := b.Base
	for i := 0; i < n; i++ {
		if (b.Cap > 0 && d >= b.Cap) || d > math.MaxInt64/2 {
			break
		}
		d *= 2
	}
	if b.Cap > 0 && d > b.Cap {
		d = b.Cap
	}
	return d
}

// Delay returns the jittered delay before retry n (0-based).
func (b Backoff) Delay(n int) time.Duration {
	d := b.Nominal(n)
	if b.Jitter <= 0 {
		return d
	}
	r := rand.Float64
	if b.Rand != nil {
		r = b.Rand
	}
	factor := 1 + b.Jitter*(2*r()-1)
	return time.Duration(float64(d) * factor)
}
