package testutil

import (
	"sync"
	"testing"
	"time"
)

func TestDeterministicClock_Advances(t *testing.T) {
	c := NewDeterministicClock()

	first := c.Now()
	second := c.Now()
	if !second.After(first) {
		t.Errorf("clock did not advance: %v then %v", first, second)
	}
	if second.Sub(first) != time.Second {
		t.Errorf("step = %v, want 1s", second.Sub(first))
	}
}

func TestDeterministicClock_ResetReplays(t *testing.T) {
	c := NewDeterministicClock()
	first := c.Now()
	c.Now()
	c.Now()

	c.Reset()
	if got := c.Now(); !got.Equal(first) {
		t.Errorf("after Reset, Now() = %v, want %v", got, first)
	}
}

func TestDeterministicClock_Concurrent(t *testing.T) {
	c := NewDeterministicClock()

	const n = 50
	var wg sync.WaitGroup
	ticks := make(chan time.Time, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticks <- c.Now()
		}()
	}
	wg.Wait()
	close(ticks)

	seen := make(map[time.Time]bool)
	for tick := range ticks {
		if seen[tick] {
			t.Fatalf("duplicate tick %v", tick)
		}
		seen[tick] = true
	}
}
