package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/frame"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/timeseries"
)

// RunSummary accumulates whole-run latency quantiles. The live
// LatencyTracker only sees the last window; the digest sees every frame
// in roughly constant memory.
type RunSummary struct {
	mu     sync.Mutex
	digest *tdigest.TDigest
	min    time.Duration
	max    time.Duration
}

// NewRunSummary creates an empty summary.
func NewRunSummary() *RunSummary {
	return &RunSummary{
		digest: tdigest.NewWithCompression(100), // ~100 centroids
	}
}

// Observe records one rendered frame's end-to-end latency.
func (r *RunSummary) Observe(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.digest.Add(float64(d.Nanoseconds()), 1)
	if r.digest.Count() == 1 || d < r.min {
		r.min = d
	}
	if d > r.max {
		r.max = d
	}
}

// LatencyQuantiles is the whole-run latency distribution.
type LatencyQuantiles struct {
	Count int64
	Min   time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// Quantiles returns the distribution so far; all zero before any Observe.
func (r *RunSummary) Quantiles() LatencyQuantiles {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(r.digest.Count())
	if n == 0 {
		return LatencyQuantiles{}
	}
	return LatencyQuantiles{
		Count: n,
		Min:   r.min,
		P50:   time.Duration(r.digest.Quantile(0.50)),
		P95:   time.Duration(r.digest.Quantile(0.95)),
		P99:   time.Duration(r.digest.Quantile(0.99)),
		Max:   r.max,
	}
}

// SummaryConfig holds run details that are not pipeline counters.
type SummaryConfig struct {
	RunID    string
	Source   string
	Mode     string
	Policy   string
	Dims     frame.Dimensions
	Duration time.Duration

	// MetricsAddr is the Prometheus listen address, if enabled.
	MetricsAddr string

	Bandwidth timeseries.BandwidthStats

	// DecoderWarnings maps decoder stderr patterns to occurrence counts.
	DecoderWarnings map[string]int
}

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════════════════════════\n"
	ruleLight = "───────────────────────────────────────────────────────────────────────────────\n"
)

// FormatExitSummary renders the report printed after the terminal is
// released.
func FormatExitSummary(snap Snapshot, lat LatencyQuantiles, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(ruleHeavy)
	b.WriteString("                       go-ffmpeg-termvideo Exit Summary\n")
	b.WriteString(ruleHeavy + "\n")

	fmt.Fprintf(&b, "Run ID:                 %s\n", cfg.RunID)
	fmt.Fprintf(&b, "Source:                 %s\n", cfg.Source)
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Render Mode:            %s (%s)\n", cfg.Mode, cfg.Policy)
	fmt.Fprintf(&b, "Grid:                   %dx%d\n\n", cfg.Dims.Cols, cfg.Dims.Rows)

	section(&b, "Frames")
	fmt.Fprintf(&b, "  %-20s %12s %12s\n", "Stage", "Frames", "Avg FPS")
	b.WriteString("  " + strings.Repeat("─", 46) + "\n")
	secs := cfg.Duration.Seconds()
	for _, row := range []struct {
		name string
		n    int64
	}{
		{"Decoded", snap.Decoded},
		{"Processed", snap.Processed},
		{"Rendered", snap.Rendered},
	} {
		fmt.Fprintf(&b, "  %-20s %12s %12s\n", row.name, FormatNumber(row.n), avgFPS(row.n, secs))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  Dropped:              %d (decode %d, process %d)\n",
		snap.Dropped, snap.DroppedDecode, snap.DroppedProcess)
	if snap.Decoded > 0 {
		fmt.Fprintf(&b, "  Drop Rate:            %.2f%%\n", float64(snap.Dropped)*100/float64(snap.Decoded))
	}
	fmt.Fprintf(&b, "  Pacing Misses:        %d\n", snap.PacingMisses)
	if snap.Loops > 0 {
		fmt.Fprintf(&b, "  Source Loops:         %d\n", snap.Loops)
	}
	if snap.DecodeRetries > 0 {
		fmt.Fprintf(&b, "  Decode Retries:       %d\n", snap.DecodeRetries)
	}
	b.WriteString("\n")

	if lat.Count > 0 {
		section(&b, "Latency (decode to draw)")
		fmt.Fprintf(&b, "  Samples:              %s\n", FormatNumber(lat.Count))
		fmt.Fprintf(&b, "  Min:                  %s\n", FormatMs(lat.Min))
		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatMs(lat.P50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatMs(lat.P95))
		fmt.Fprintf(&b, "  P99:                  %s\n", FormatMs(lat.P99))
		fmt.Fprintf(&b, "  Max:                  %s\n\n", FormatMs(lat.Max))
	}

	if cfg.Bandwidth.TotalBytes > 0 {
		section(&b, "Terminal Output")
		fmt.Fprintf(&b, "  Total Written:        %s\n", FormatBytes(cfg.Bandwidth.TotalBytes))
		fmt.Fprintf(&b, "  Average Rate:         %s/s\n", FormatBytes(int64(cfg.Bandwidth.RateOverall)))
		fmt.Fprintf(&b, "  Per Frame:            %s\n\n", FormatBytes(int64(cfg.Bandwidth.BytesPerFrame)))
	}

	if len(cfg.DecoderWarnings) > 0 {
		section(&b, "Decoder Warnings")
		patterns := make([]string, 0, len(cfg.DecoderWarnings))
		for p := range cfg.DecoderWarnings {
			patterns = append(patterns, p)
		}
		sort.Strings(patterns)
		for _, p := range patterns {
			fmt.Fprintf(&b, "  %-28s %d\n", p+":", cfg.DecoderWarnings[p])
		}
		b.WriteString("\n")
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString(ruleHeavy)

	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString(ruleLight)
	pad := (len([]rune(ruleLight)) - 1 - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(ruleLight + "\n")
}

func avgFPS(n int64, secs float64) string {
	if secs <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", float64(n)/secs)
}

// =============================================================================
// Formatting helpers (shared with the status bar and TUI)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration in milliseconds with one decimal, falling
// back to microseconds below a millisecond.
func FormatMs(d time.Duration) string {
	if d > 0 && d < time.Millisecond {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%.1f ms", float64(d)/float64(time.Millisecond))
}
