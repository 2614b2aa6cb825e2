package timeseries

import (
	"sort"
	"sync"
	"time"
)

// DefaultRateWindow is the trailing window used for frames-per-second.
const DefaultRateWindow = time.Second

// RateCounter counts events inside a trailing time window.
//
// Tick records an event and evicts events that have left the window.
// Rate reads without mutating, so one writer and any number of readers
// can share a counter.
type RateCounter struct {
	mu     sync.Mutex
	ticks  []time.Time // oldest first
	window time.Duration
	clock  Clock
}

// NewRateCounterWithClock creates a counter with a custom clock and window.
func NewRateCounterWithClock(clock Clock, window time.Duration) *RateCounter {
	if window <= 0 {
		window = DefaultRateWindow
	}
	return &RateCounter{
		ticks:  make([]time.Time, 0, 64),
		window: window,
		clock:  clock,
	}
}

// Tick records one event at the current time.
func (c *RateCounter) Tick() {
	now := c.clock.Now()
	cutoff := now.Add(-c.window)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.ticks = append(c.ticks, now)

	// Evict stale entries; ticks are appended in time order.
	i := 0
	for i < len(c.ticks) && c.ticks[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		c.ticks = c.ticks[i:]
	}
}

// Rate returns the number of events recorded within the trailing window.
// For a one-second window this is events per second.
func (c *RateCounter) Rate() float64 {
	cutoff := c.clock.Now().Add(-c.window)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Entries older than the cutoff may linger until the next Tick.
	first := sort.Search(len(c.ticks), func(i int) bool {
		return !c.ticks[i].Before(cutoff)
	})
	return float64(len(c.ticks)-first) / c.window.Seconds()
}

// Window returns the trailing window length.
func (c *RateCounter) Window() time.Duration {
	return c.window
}
