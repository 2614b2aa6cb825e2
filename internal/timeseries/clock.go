// Package timeseries provides time-windowed rate tracking for pipeline telemetry.
//
// RateCounter answers "how many events in the last second" for each stage.
// BandwidthTracker answers "how many bytes per second reach the terminal"
// over a few trailing windows.
//
// Both accept a Clock so tests can drive time deterministically.
package timeseries

import "time"

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

// realClock uses time.Now() for production.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }
