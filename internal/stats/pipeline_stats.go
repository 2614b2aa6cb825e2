// Package stats provides live pipeline telemetry and the exit summary.
//
// PipelineStats is shared by the decode, process and render workers and by
// any external reader (status line, Prometheus collector, websocket
// telemetry). Each field carries its own synchronization; readers get
// eventually consistent snapshots, never torn values.
package stats

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/timeseries"
)

// PipelineStats holds the per-stage rate counters, the latency window and
// monotonic event counters for one pipeline run.
type PipelineStats struct {
	DecodeFPS  *timeseries.RateCounter
	ProcessFPS *timeseries.RateCounter
	RenderFPS  *timeseries.RateCounter
	Latency    *LatencyTracker

	// Written by the decode worker.
	Decoded       atomic.Int64
	DroppedDecode atomic.Int64
	PacingMisses  atomic.Int64
	DecodeRetries atomic.Int64
	Loops         atomic.Int64

	// Written by the process worker.
	Processed      atomic.Int64
	DroppedProcess atomic.Int64

	// Written by the render worker.
	Rendered atomic.Int64

	// Dropped is the sum of all stage drops, incremented alongside them.
	Dropped atomic.Int64

	StartTime time.Time
}

// NewPipelineStats creates stats on the wall clock with the given latency
// window size.
func NewPipelineStats(latencyWindow int) *PipelineStats {
	return NewPipelineStatsWithClock(timeseries.RealClock(), latencyWindow)
}

// NewPipelineStatsWithClock creates stats whose rate counters read clock.
func NewPipelineStatsWithClock(clock timeseries.Clock, latencyWindow int) *PipelineStats {
	return &PipelineStats{
		DecodeFPS:  timeseries.NewRateCounterWithClock(clock, timeseries.DefaultRateWindow),
		ProcessFPS: timeseries.NewRateCounterWithClock(clock, timeseries.DefaultRateWindow),
		RenderFPS:  timeseries.NewRateCounterWithClock(clock, timeseries.DefaultRateWindow),
		Latency:    NewLatencyTracker(latencyWindow),
		StartTime:  clock.Now(),
	}
}

// RecordDecodeDrop counts a frame discarded between decode and process.
func (s *PipelineStats) RecordDecodeDrop() {
	s.DroppedDecode.Add(1)
	s.Dropped.Add(1)
}

// RecordProcessDrop counts a frame discarded between process and render.
func (s *PipelineStats) RecordProcessDrop() {
	s.DroppedProcess.Add(1)
	s.Dropped.Add(1)
}

// Snapshot is a plain copy of PipelineStats at one instant.
type Snapshot struct {
	Decoded        int64 `json:"decoded"`
	Processed      int64 `json:"processed"`
	Rendered       int64 `json:"rendered"`
	Dropped        int64 `json:"dropped"`
	DroppedDecode  int64 `json:"dropped_decode"`
	DroppedProcess int64 `json:"dropped_process"`
	PacingMisses   int64 `json:"pacing_misses"`
	DecodeRetries  int64 `json:"decode_retries"`
	Loops          int64 `json:"loops"`

	DecodeFPS  float64 `json:"decode_fps"`
	ProcessFPS float64 `json:"process_fps"`
	RenderFPS  float64 `json:"render_fps"`

	LatencyP50 time.Duration `json:"latency_p50_ns"`
	LatencyP95 time.Duration `json:"latency_p95_ns"`
	LatencyAvg time.Duration `json:"latency_avg_ns"`
}

// Snapshot reads every field once. Fields are not mutually atomic.
func (s *PipelineStats) Snapshot() Snapshot {
	p50, p95, avg := s.Latency.Summary()
	return Snapshot{
		Decoded:        s.Decoded.Load(),
		Processed:      s.Processed.Load(),
		Rendered:       s.Rendered.Load(),
		Dropped:        s.Dropped.Load(),
		DroppedDecode:  s.DroppedDecode.Load(),
		DroppedProcess: s.DroppedProcess.Load(),
		PacingMisses:   s.PacingMisses.Load(),
		DecodeRetries:  s.DecodeRetries.Load(),
		Loops:          s.Loops.Load(),
		DecodeFPS:      s.DecodeFPS.Rate(),
		ProcessFPS:     s.ProcessFPS.Rate(),
		RenderFPS:      s.RenderFPS.Rate(),
		LatencyP50:     p50,
		LatencyP95:     p95,
		LatencyAvg:     avg,
	}
}

// Format renders the one-line status shown under the video.
func (s *PipelineStats) Format() string {
	return s.Snapshot().Format()
}

// Format renders the snapshot as a single status line.
func (snap Snapshot) Format() string {
	return fmt.Sprintf("FPS D:%.0f P:%.0f R:%.0f | Lat %.1f/%.1fms | Drop %d | Frames %d",
		snap.DecodeFPS, snap.ProcessFPS, snap.RenderFPS,
		ms(snap.LatencyP50), ms(snap.LatencyP95),
		snap.Dropped, snap.Rendered,
	)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
