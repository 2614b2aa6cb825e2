// Package retry paces repeated attempts at a failing operation, such as the
// decode worker re-reading a source that keeps returning errors or empty
// streams.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig holds the configuration for exponential backoff.
type BackoffConfig struct {
	Initial    time.Duration // first delay
	Max        time.Duration // delay cap
	Multiplier float64       // growth per attempt
	JitterPct  float64       // total jitter band as a fraction of the delay (0.2 = ±10%)
}

// DefaultBackoffConfig is tuned for decoder retries: short enough that a
// transient read error costs a frame or two, capped so a dead source does
// not spin.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    50 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 2.0,
		JitterPct:  0.2,
	}
}

// Backoff calculates exponential backoff delays with jitter.
// Not safe for concurrent use; each retrying loop owns one.
type Backoff struct {
	config   BackoffConfig
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a Backoff whose jitter sequence is fixed by seed.
func NewBackoff(seed int64, cfg BackoffConfig) *Backoff {
	return &Backoff{
		config: cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next delay and increments the attempt counter.
func (b *Backoff) Next() time.Duration {
	d := b.Calculate()
	b.attempts++
	return d
}

// Calculate returns the current delay without incrementing attempts.
func (b *Backoff) Calculate() time.Duration {
	delay := float64(b.config.Initial) * math.Pow(b.config.Multiplier, float64(b.attempts))
	if delay > float64(b.config.Max) {
		delay = float64(b.config.Max)
	}

	if b.config.JitterPct > 0 {
		band := delay * b.config.JitterPct
		delay += band*b.rng.Float64() - band/2
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Reset sets the attempt counter back to zero after a success.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Wait sleeps for the next delay or until stop is closed. It reports
// whether the full delay elapsed.
func (b *Backoff) Wait(stop <-chan struct{}) bool {
	return Sleep(stop, b.Next())
}

// Sleep waits for d or until stop is closed, whichever is first. It reports
// whether the full duration elapsed. A non-positive d only checks stop.
func Sleep(stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-stop:
			return false
		default:
			return true
		}
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
