package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Nominal(t *testing.T) {
	b := DefaultBackoff()

	want := []time.Duration{1, 2, 4, 8, 16, 16, 16}
	for n, w := range want {
		assert.Equal(t, w*time.Second, b.Nominal(n), "retry %d", n)
	}
}

func TestBackoff_NonDecreasingUpToCap(t *testing.T) {
	b := Backoff{Base: 300 * time.Millisecond, Cap: 10 * time.Second}

	prev := time.Duration(0)
	for n := 0; n < 64; n++ {
		d := b.Nominal(n)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, b.Cap)
		if prev < b.Cap && d < b.Cap {
			assert.Greater(t, d, prev, "strictly increasing below the cap")
		}
		prev = d
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	low := Backoff{Base: time.Second, Cap: 16 * time.Second, Jitter: 0.2, Rand: func() float64 { return 0 }}
	high := low
	high.Rand = func() float64 { return 0.999999 }
	mid := low
	mid.Rand = func() float64 { return 0.5 }

	for n := 0; n < 8; n++ {
		nominal := low.Nominal(n)
		assert.Equal(t, time.Duration(float64(nominal)*0.8), low.Delay(n))
		assert.LessOrEqual(t, high.Delay(n), time.Duration(float64(nominal)*1.2))
		assert.Equal(t, nominal, mid.Delay(n))
	}
}

func TestBackoff_DefaultRandWithinBounds(t *testing.T) {
	b := DefaultBackoff()
	for i := 0; i < 200; i++ {
		d := b.Delay(10)
		assert.GreaterOrEqual(t, d, time.Duration(float64(b.Cap)*0.8))
		assert.LessOrEqual(t, d, time.Duration(float64(b.Cap)*1.2))
	}
}

func TestBackoff_ZeroBase(t *testing.T) {
	assert.Zero(t, Backoff{}.Delay(3))
}
