package stats

import (
	"slices"
	"sync"
	"time"
)

// DefaultLatencyWindow is the number of recent samples kept for percentiles.
const DefaultLatencyWindow = 100

// LatencyTracker keeps the most recent N end-to-end latency samples and
// reports nearest-rank percentiles over them.
//
// Percentiles are computed at read time over a sorted copy, so Record stays
// O(1) on the render path.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []time.Duration // ring buffer
	next    int
	full    bool
}

// NewLatencyTracker creates a tracker holding up to window samples.
// A non-positive window falls back to DefaultLatencyWindow.
func NewLatencyTracker(window int) *LatencyTracker {
	if window <= 0 {
		window = DefaultLatencyWindow
	}
	return &LatencyTracker{samples: make([]time.Duration, window)}
}

// Record adds a sample, evicting the oldest when the window is full.
func (t *LatencyTracker) Record(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples[t.next] = d
	t.next++
	if t.next == len(t.samples) {
		t.next = 0
		t.full = true
	}
}

// Count returns the number of samples currently in the window.
func (t *LatencyTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.countLocked()
}

// Window returns the window size.
func (t *LatencyTracker) Window() int {
	return len(t.samples)
}

// P50 returns the median latency, or 0 when empty.
func (t *LatencyTracker) P50() time.Duration {
	return t.Percentile(50)
}

// P95 returns the 95th percentile latency, or 0 when empty.
func (t *LatencyTracker) P95() time.Duration {
	return t.Percentile(95)
}

// Percentile returns the nearest-rank percentile p (0-100) of the window:
// the element at index p*n/100 of the sorted samples, clamped to n-1.
func (t *LatencyTracker) Percentile(p int) time.Duration {
	sorted := t.sortedCopy()
	return percentileOf(sorted, p)
}

// Avg returns the arithmetic mean, or 0 when empty.
func (t *LatencyTracker) Avg() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.countLocked()
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range t.samples[:n] {
		sum += d
	}
	return sum / time.Duration(n)
}

// Summary returns p50, p95 and avg from a single locked copy.
func (t *LatencyTracker) Summary() (p50, p95, avg time.Duration) {
	sorted := t.sortedCopy()
	if len(sorted) == 0 {
		return 0, 0, 0
	}
	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	return percentileOf(sorted, 50), percentileOf(sorted, 95), sum / time.Duration(len(sorted))
}

func (t *LatencyTracker) countLocked() int {
	if t.full {
		return len(t.samples)
	}
	return t.next
}

func (t *LatencyTracker) sortedCopy() []time.Duration {
	t.mu.Lock()
	out := slices.Clone(t.samples[:t.countLocked()])
	t.mu.Unlock()

	slices.Sort(out)
	return out
}

func percentileOf(sorted []time.Duration, p int) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := p * n / 100
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}
