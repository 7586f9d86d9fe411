package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var start = time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC)

func TestClock_StartsStopped(t *testing.T) {
	clock := NewClock(start)
	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())
}

func TestClock_Advance(t *testing.T) {
	clock := NewClock(start)

	assert.Equal(t, start.Add(10*time.Minute), clock.Advance(10*time.Minute))
	assert.Equal(t, start.Add(10*time.Minute), clock.Now())

	clock.Advance(time.Hour)
	assert.Equal(t, start.Add(70*time.Minute), clock.Now())
}

func TestClock_Set(t *testing.T) {
	clock := NewClock(start)
	clock.Advance(time.Hour)

	clock.Set(start.Add(-time.Minute))
	assert.Equal(t, start.Add(-time.Minute), clock.Now())
}

func TestClock_ThreadSafe(t *testing.T) {
	clock := NewClock(start)
	const numGoroutines = 50
	const callsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				clock.Advance(time.Second)
				_ = clock.Now()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(numGoroutines*callsPerGoroutine*time.Second), clock.Now())
}
