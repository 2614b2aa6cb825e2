// Package config provides configuration management for go-ffmpeg-termvideo.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/pipeline"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/processor"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/source"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/stats"
)

// Config holds all configuration options for a playback run.
type Config struct {
	// Playback
	VideoPath     string        `json:"video_path"`
	Mode          string        `json:"mode"` // ascii, color
	Backpressure  bool          `json:"backpressure"`
	DecodeQueue   int           `json:"decode_queue"`
	RenderQueue   int           `json:"render_queue"`
	LatencyWindow int           `json:"latency_window"`
	Ramp          string        `json:"ramp"`
	Scaler        string        `json:"scaler"` // nearest, bilinear, catmullrom
	StatusRows    int           `json:"status_rows"`
	Duration      time.Duration `json:"duration"` // 0 = until quit

	// FFmpeg
	FFmpegPath     string `json:"ffmpeg_path"`
	FFprobePath    string `json:"ffprobe_path"` // empty = next to ffmpeg
	FFmpegLogLevel string `json:"ffmpeg_log_level"`

	// Synthetic source
	Synthetic       bool    `json:"synthetic"`
	SyntheticFrames int64   `json:"synthetic_frames"`
	SyntheticFPS    float64 `json:"synthetic_fps"`
	SyntheticSize   string  `json:"synthetic_size"` // WxH

	// Display
	TUIEnabled bool `json:"tui_enabled"`

	// Observability
	MetricsAddr       string        `json:"metrics_addr"` // empty = disabled
	TelemetryInterval time.Duration `json:"telemetry_interval"`
	LogFile           string        `json:"log_file"`
	LogFormat         string        `json:"log_format"` // json, text
	Verbose           bool          `json:"verbose"`

	// Diagnostic modes
	SkipPreflight bool `json:"skip_preflight"`
	PrintCmd      bool `json:"print_cmd"`
	PrintMetrics  bool `json:"print_metrics"`
	ShowVersion   bool `json:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	synth := source.DefaultSyntheticConfig()
	return &Config{
		Mode:          processor.ModeASCII.String(),
		DecodeQueue:   pipeline.DefaultDecodeQueueSize,
		RenderQueue:   pipeline.DefaultRenderQueueSize,
		LatencyWindow: stats.DefaultLatencyWindow,
		Scaler:        string(processor.ScalerBilinear),
		StatusRows:    pipeline.DefaultStatusRows,

		FFmpegPath:     "ffmpeg",
		FFmpegLogLevel: "error",

		SyntheticFrames: synth.Frames,
		SyntheticFPS:    synth.FPS,
		SyntheticSize:   fmt.Sprintf("%dx%d", synth.Width, synth.Height),

		MetricsAddr:       "127.0.0.1:17091",
		TelemetryInterval: time.Second,
		LogFormat:         "text",
	}
}

// Policy returns the flow policy selected by -backpressure.
func (c *Config) Policy() pipeline.FlowPolicy {
	if c.Backpressure {
		return pipeline.FlowBackpressure
	}
	return pipeline.FlowDrop
}

// PipelineConfig converts the flags into a pipeline configuration.
func (c *Config) PipelineConfig() (pipeline.Config, error) {
	mode, err := processor.ParseRenderMode(c.Mode)
	if err != nil {
		return pipeline.Config{}, err
	}
	scaler, err := processor.ParseScaler(c.Scaler)
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Mode:            mode,
		Policy:          c.Policy(),
		DecodeQueueSize: c.DecodeQueue,
		RenderQueueSize: c.RenderQueue,
		LatencyWindow:   c.LatencyWindow,
		Ramp:            processor.ResolveRamp(c.Ramp),
		Scaler:          scaler,
		StatusRows:      c.StatusRows,
	}, nil
}

// SyntheticConfig converts the -synthetic-* flags.
func (c *Config) SyntheticConfig() (source.SyntheticConfig, error) {
	w, h, err := ParseSize(c.SyntheticSize)
	if err != nil {
		return source.SyntheticConfig{}, err
	}
	return source.SyntheticConfig{
		Width:  w,
		Height: h,
		FPS:    c.SyntheticFPS,
		Frames: c.SyntheticFrames,
	}, nil
}

// SourceName labels the run in metrics and the exit summary.
func (c *Config) SourceName() string {
	if c.Synthetic {
		return "synthetic"
	}
	return c.VideoPath
}

// ParseSize parses "WxH" with both sides positive.
func ParseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q is not WxH", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: bad width: %w", s, err)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: bad height: %w", s, err)
	}
	if w < 1 || h < 1 {
		return 0, 0, fmt.Errorf("size %q must be at least 1x1", s)
	}
	return w, h, nil
}
