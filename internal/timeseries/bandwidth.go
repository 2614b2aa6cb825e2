package timeseries

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// bandwidthSamples bounds the history: two minutes at the default
	// 500ms telemetry interval.
	bandwidthSamples = 240

	bwWindowShort  = 1 * time.Second
	bwWindowMedium = 10 * time.Second
	bwWindowLong   = 60 * time.Second
)

type bwSample struct {
	at    time.Time
	bytes int64
}

// BandwidthTracker measures how many bytes the display writes to the
// terminal. True-color grids are roughly twenty bytes per cell, so this is
// what usually saturates a remote session first.
//
// Usage:
//
//	bw := NewBandwidthTracker()
//	bw.Add(n)     // per drawn frame, lock-free
//	bw.Sample()   // periodically, from the telemetry loop
//	stats := bw.Stats()
type BandwidthTracker struct {
	total  atomic.Int64
	frames atomic.Int64

	mu      sync.RWMutex
	samples []bwSample // ring buffer
	next    int

	start time.Time
	clock Clock
}

// BandwidthStats is a point-in-time view of display output rates.
type BandwidthStats struct {
	TotalBytes  int64
	TotalFrames int64

	// Bytes per second over trailing windows.
	Rate1s  float64
	Rate10s float64
	Rate60s float64

	// RateOverall is bytes per second since the tracker started.
	RateOverall float64

	// BytesPerFrame is the mean size of one drawn frame.
	BytesPerFrame float64
}

// NewBandwidthTracker creates a tracker on the wall clock.
func NewBandwidthTracker() *BandwidthTracker {
	return NewBandwidthTrackerWithClock(realClock{})
}

// NewBandwidthTrackerWithClock creates a tracker with a custom clock.
func NewBandwidthTrackerWithClock(clock Clock) *BandwidthTracker {
	now := clock.Now()
	b := &BandwidthTracker{
		samples: make([]bwSample, 0, bandwidthSamples),
		start:   now,
		clock:   clock,
	}
	b.samples = append(b.samples, bwSample{at: now})
	return b
}

// Add accounts for one drawn frame of n bytes. Non-positive sizes only
// count the frame.
func (b *BandwidthTracker) Add(n int) {
	b.frames.Add(1)
	if n > 0 {
		b.total.Add(int64(n))
	}
}

// Sample records the cumulative byte count at the current time.
func (b *BandwidthTracker) Sample() {
	s := bwSample{at: b.clock.Now(), bytes: b.total.Load()}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.samples) < bandwidthSamples {
		b.samples = append(b.samples, s)
		return
	}
	b.samples[b.next] = s
	b.next = (b.next + 1) % bandwidthSamples
}

// Stats computes the current rates from the recorded samples.
func (b *BandwidthTracker) Stats() BandwidthStats {
	now := b.clock.Now()
	total := b.total.Load()
	frames := b.frames.Load()

	b.mu.RLock()
	defer b.mu.RUnlock()

	st := BandwidthStats{
		TotalBytes:  total,
		TotalFrames: frames,
		Rate1s:      b.rateSince(now, total, bwWindowShort),
		Rate10s:     b.rateSince(now, total, bwWindowMedium),
		Rate60s:     b.rateSince(now, total, bwWindowLong),
	}
	if elapsed := now.Sub(b.start).Seconds(); elapsed > 0 {
		st.RateOverall = float64(total) / elapsed
	}
	if frames > 0 {
		st.BytesPerFrame = float64(total) / float64(frames)
	}
	return st
}

// rateSince finds the newest sample at or before now-window (or the oldest
// sample when history is shorter than the window) and returns the byte
// rate since then. Caller holds mu.
func (b *BandwidthTracker) rateSince(now time.Time, total int64, window time.Duration) float64 {
	target := now.Add(-window)

	var base *bwSample
	for i := range b.samples {
		s := &b.samples[i]
		if s.at.After(target) {
			continue
		}
		if base == nil || s.at.After(base.at) {
			base = s
		}
	}
	if base == nil {
		base = b.oldest()
	}
	if base == nil {
		return 0
	}

	elapsed := now.Sub(base.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(total-base.bytes) / elapsed
}

// oldest returns the oldest retained sample. Caller holds mu.
func (b *BandwidthTracker) oldest() *bwSample {
	if len(b.samples) == 0 {
		return nil
	}
	if len(b.samples) < bandwidthSamples {
		return &b.samples[0]
	}
	return &b.samples[b.next]
}

// SampleCount returns the number of retained samples.
func (b *BandwidthTracker) SampleCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}
