package pipeline

import (
	"fmt"
	"strings"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/processor"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/stats"
)

// FlowPolicy selects what a stage does when the next queue is full.
type FlowPolicy int

const (
	// FlowDrop discards the incoming frame and counts it. Latency stays
	// bounded; FrameID gaps appear downstream.
	FlowDrop FlowPolicy = iota

	// FlowBackpressure blocks the producer until space frees up. Nothing
	// is dropped; throughput follows the slowest stage.
	FlowBackpressure
)

// String returns the policy name used in flags, logs and metrics labels.
func (f FlowPolicy) String() string {
	switch f {
	case FlowDrop:
		return "drop"
	case FlowBackpressure:
		return "backpressure"
	default:
		return "unknown"
	}
}

// ParseFlowPolicy parses "drop" or "backpressure".
func ParseFlowPolicy(s string) (FlowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drop", "":
		return FlowDrop, nil
	case "backpressure", "block":
		return FlowBackpressure, nil
	default:
		return FlowDrop, fmt.Errorf("unknown flow policy %q (want drop or backpressure)", s)
	}
}

// Default queue capacities.
const (
	DefaultDecodeQueueSize = 16
	DefaultRenderQueueSize = 8
	DefaultStatusRows      = 2
)

// Config is fixed for the life of a run.
type Config struct {
	Mode   processor.RenderMode
	Policy FlowPolicy

	DecodeQueueSize int
	RenderQueueSize int
	LatencyWindow   int

	// Ramp and Scaler tune the processor; zero values use its defaults.
	Ramp   string
	Scaler processor.Scaler

	// StatusRows is how many terminal rows are reserved below the video.
	StatusRows int
}

// DefaultConfig returns an ASCII, drop-policy configuration.
func DefaultConfig() Config {
	return Config{
		Mode:            processor.ModeASCII,
		Policy:          FlowDrop,
		DecodeQueueSize: DefaultDecodeQueueSize,
		RenderQueueSize: DefaultRenderQueueSize,
		LatencyWindow:   stats.DefaultLatencyWindow,
		Scaler:          processor.ScalerBilinear,
		StatusRows:      DefaultStatusRows,
	}
}
