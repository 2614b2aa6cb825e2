package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/processor"
)

// Validation limits.
const (
	maxQueueSize         = 1024
	maxStatusRows        = 10
	minTelemetryInterval = 50 * time.Millisecond
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem joined with errors.Join.
func Validate(cfg *Config) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// A video is required unless the synthetic source replaces it
	if cfg.VideoPath == "" && !cfg.Synthetic && !cfg.PrintCmd {
		add("video_path", "a video file is required (or pass -synthetic)")
	}

	if _, err := processor.ParseRenderMode(cfg.Mode); err != nil {
		add("mode", "must be 'ascii' or 'color' (got %q)", cfg.Mode)
	}
	if _, err := processor.ParseScaler(cfg.Scaler); err != nil {
		add("scaler", "must be one of: nearest, bilinear, catmullrom (got %q)", cfg.Scaler)
	}
	if cfg.Ramp != "" {
		if err := processor.ValidateRamp(processor.ResolveRamp(cfg.Ramp)); err != nil {
			add("ramp", "%v", err)
		}
	}

	// Queue sizes
	if cfg.DecodeQueue < 1 || cfg.DecodeQueue > maxQueueSize {
		add("decode_queue", "must be between 1 and %d (got %d)", maxQueueSize, cfg.DecodeQueue)
	}
	if cfg.RenderQueue < 1 || cfg.RenderQueue > maxQueueSize {
		add("render_queue", "must be between 1 and %d (got %d)", maxQueueSize, cfg.RenderQueue)
	}
	if cfg.LatencyWindow < 1 {
		add("latency_window", "must be at least 1")
	}
	if cfg.StatusRows < 1 || cfg.StatusRows > maxStatusRows {
		add("status_rows", "must be between 1 and %d (got %d)", maxStatusRows, cfg.StatusRows)
	}

	if cfg.Duration < 0 {
		add("duration", "must not be negative")
	}

	// Synthetic source
	if cfg.Synthetic {
		if cfg.SyntheticFrames < 1 {
			add("synthetic_frames", "must be at least 1")
		}
		if cfg.SyntheticFPS <= 0 {
			add("synthetic_fps", "must be positive")
		}
		if _, _, err := ParseSize(cfg.SyntheticSize); err != nil {
			add("synthetic_size", "%v", err)
		}
	} else if cfg.FFmpegPath == "" {
		add("ffmpeg_path", "must not be empty")
	}

	// Observability
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			add("metrics_addr", "must be host:port (got %q)", cfg.MetricsAddr)
		}
	}
	if cfg.PrintMetrics && cfg.MetricsAddr == "" {
		add("print_metrics", "--print-metrics requires -metrics")
	}
	if cfg.TelemetryInterval < minTelemetryInterval {
		add("telemetry_interval", "must be at least %v (got %v)", minTelemetryInterval, cfg.TelemetryInterval)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		add("log_format", "must be 'json' or 'text' (got %q)", cfg.LogFormat)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
