// Package metrics exports playback telemetry to Prometheus.
//
// Metrics are grouped by dashboard panel:
//   - Run overview: info, elapsed time
//   - Frames: per-stage totals and rates
//   - Flow control: drops by stage, pacing misses, decode retries, loops
//   - Queues: occupancy and capacity
//   - Latency: decode-to-draw histogram and windowed percentiles
//   - Terminal output: bytes written and throughput
//
// Counters are fed from cumulative pipeline snapshots; the collector keeps
// the previous snapshot and adds the delta on every update.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/pipeline"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/stats"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/timeseries"
)

// Namespace prefixes every metric name.
const Namespace = "termvideo"

// Stage and queue label values.
const (
	StageDecode  = "decode"
	StageProcess = "process"
	StageRender  = "render"

	QueueDecode = "decode"
	QueueRender = "render"
)

// LatencyBuckets spans a few milliseconds to a couple of seconds, which
// covers a full render queue at low frame rates.
var LatencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.02, 0.033, 0.05, 0.075,
	0.1, 0.25, 0.5, 1.0, 2.5,
}

// Collector owns one run's metrics. Each collector registers its own
// metric instances, so tests can use isolated registries.
type Collector struct {
	// --- Run overview ---
	info    *prometheus.GaugeVec
	elapsed prometheus.Gauge

	// --- Frames ---
	framesTotal *prometheus.CounterVec
	stageFPS    *prometheus.GaugeVec

	// --- Flow control ---
	droppedTotal       *prometheus.CounterVec
	pacingMissesTotal  prometheus.Counter
	decodeRetriesTotal prometheus.Counter
	loopsTotal         prometheus.Counter

	// --- Queues ---
	queueLength   *prometheus.GaugeVec
	queueCapacity *prometheus.GaugeVec

	// --- Latency ---
	latency    prometheus.Histogram
	latencyP50 prometheus.Gauge
	latencyP95 prometheus.Gauge
	latencyAvg prometheus.Gauge

	// --- Terminal output ---
	displayBytesTotal  prometheus.Counter
	displayBytesPerSec prometheus.Gauge

	startTime time.Time

	mu        sync.Mutex
	prev      stats.Snapshot
	prevBytes int64
	updates   int64
}

// CollectorConfig labels the run.
type CollectorConfig struct {
	RunID   string
	Version string
	Source  string
	Mode    string
	Policy  string
}

// NewCollector creates a collector registered on prometheus.DefaultRegisterer.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector registered on registry.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "info",
			Help:      "Information about the playback run (value always 1)",
		}, []string{"run_id", "version", "source", "mode", "policy"}),
		elapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "elapsed_seconds",
			Help:      "Seconds since playback started",
		}),

		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_total",
			Help:      "Frames completed by each pipeline stage",
		}, []string{"stage"}),
		stageFPS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "stage_fps",
			Help:      "Frames per second completed by each stage over the rate window",
		}, []string{"stage"}),

		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames discarded, by the stage that discarded them",
		}, []string{"stage"}),
		pacingMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pacing_misses_total",
			Help:      "Frames the decoder produced after their pacing deadline",
		}),
		decodeRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decode_retries_total",
			Help:      "Decode errors followed by a backoff and retry",
		}),
		loopsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "loops_total",
			Help:      "Times the source reached its end and was rewound",
		}),

		queueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "queue_length",
			Help:      "Frames currently buffered in each queue",
		}, []string{"queue"}),
		queueCapacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "queue_capacity",
			Help:      "Capacity of each queue",
		}, []string{"queue"}),

		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "frame_latency_seconds",
			Help:      "Time from decode to draw for each rendered frame",
			Buckets:   LatencyBuckets,
		}),
		latencyP50: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "frame_latency_p50_seconds",
			Help:      "Median decode-to-draw latency over the latency window",
		}),
		latencyP95: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "frame_latency_p95_seconds",
			Help:      "95th percentile decode-to-draw latency over the latency window",
		}),
		latencyAvg: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "frame_latency_avg_seconds",
			Help:      "Mean decode-to-draw latency over the latency window",
		}),

		displayBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "display_bytes_total",
			Help:      "Bytes written to the terminal",
		}),
		displayBytesPerSec: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "display_bytes_per_second",
			Help:      "Terminal output throughput over the last 10 seconds",
		}),

		startTime: time.Now(),
	}

	registry.MustRegister(
		c.info, c.elapsed,
		c.framesTotal, c.stageFPS,
		c.droppedTotal, c.pacingMissesTotal, c.decodeRetriesTotal, c.loopsTotal,
		c.queueLength, c.queueCapacity,
		c.latency, c.latencyP50, c.latencyP95, c.latencyAvg,
		c.displayBytesTotal, c.displayBytesPerSec,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	c.info.WithLabelValues(cfg.RunID, version, cfg.Source, cfg.Mode, cfg.Policy).Set(1)

	// Make every labeled series visible from the first scrape.
	for _, stage := range []string{StageDecode, StageProcess, StageRender} {
		c.framesTotal.WithLabelValues(stage)
		c.stageFPS.WithLabelValues(stage)
	}
	c.droppedTotal.WithLabelValues(StageDecode)
	c.droppedTotal.WithLabelValues(StageProcess)
	for _, q := range []string{QueueDecode, QueueRender} {
		c.queueLength.WithLabelValues(q)
		c.queueCapacity.WithLabelValues(q)
	}

	return c
}

// =============================================================================
// Update Methods
// =============================================================================

// StatsUpdate is one telemetry sample.
type StatsUpdate struct {
	Snapshot  stats.Snapshot
	Queues    pipeline.QueueDepths
	Bandwidth timeseries.BandwidthStats
}

// RecordStats updates every gauge and adds counter deltas since the
// previous call. Counters never move backwards; a snapshot lower than the
// previous one (a new run on the same collector) resets the baseline.
func (c *Collector) RecordStats(u *StatsUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := u.Snapshot
	c.elapsed.Set(time.Since(c.startTime).Seconds())

	// --- Frames ---
	addDelta(c.framesTotal.WithLabelValues(StageDecode), s.Decoded, c.prev.Decoded)
	addDelta(c.framesTotal.WithLabelValues(StageProcess), s.Processed, c.prev.Processed)
	addDelta(c.framesTotal.WithLabelValues(StageRender), s.Rendered, c.prev.Rendered)
	c.stageFPS.WithLabelValues(StageDecode).Set(s.DecodeFPS)
	c.stageFPS.WithLabelValues(StageProcess).Set(s.ProcessFPS)
	c.stageFPS.WithLabelValues(StageRender).Set(s.RenderFPS)

	// --- Flow control ---
	addDelta(c.droppedTotal.WithLabelValues(StageDecode), s.DroppedDecode, c.prev.DroppedDecode)
	addDelta(c.droppedTotal.WithLabelValues(StageProcess), s.DroppedProcess, c.prev.DroppedProcess)
	addDelta(c.pacingMissesTotal, s.PacingMisses, c.prev.PacingMisses)
	addDelta(c.decodeRetriesTotal, s.DecodeRetries, c.prev.DecodeRetries)
	addDelta(c.loopsTotal, s.Loops, c.prev.Loops)

	// --- Queues ---
	c.queueLength.WithLabelValues(QueueDecode).Set(float64(u.Queues.DecodeLen))
	c.queueLength.WithLabelValues(QueueRender).Set(float64(u.Queues.RenderLen))
	c.queueCapacity.WithLabelValues(QueueDecode).Set(float64(u.Queues.DecodeCap))
	c.queueCapacity.WithLabelValues(QueueRender).Set(float64(u.Queues.RenderCap))

	// --- Latency ---
	c.latencyP50.Set(s.LatencyP50.Seconds())
	c.latencyP95.Set(s.LatencyP95.Seconds())
	c.latencyAvg.Set(s.LatencyAvg.Seconds())

	// --- Terminal output ---
	addDelta(c.displayBytesTotal, u.Bandwidth.TotalBytes, c.prevBytes)
	c.displayBytesPerSec.Set(u.Bandwidth.Rate10s)

	c.prev = s
	c.prevBytes = u.Bandwidth.TotalBytes
	c.updates++
}

func addDelta(counter prometheus.Counter, cur, prev int64) {
	if d := cur - prev; d > 0 {
		counter.Add(float64(d))
	}
}

// RecordLatency observes one rendered frame's latency. It is called from
// the render goroutine and takes no lock.
func (c *Collector) RecordLatency(d time.Duration) {
	c.latency.Observe(d.Seconds())
}

// Updates returns how many times RecordStats has run.
func (c *Collector) Updates() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates
}
