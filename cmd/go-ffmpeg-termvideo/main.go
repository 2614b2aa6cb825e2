// Package main provides the go-ffmpeg-termvideo CLI entry point.
//
// go-ffmpeg-termvideo plays a video file in the terminal. FFmpeg decodes
// frames, a processor shrinks them to ASCII or 24-bit color cells, and a
// render stage draws them at the source's frame rate.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/config"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/logging"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-ffmpeg-termvideo
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-ffmpeg-termvideo %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if cfg.ShowVersion {
		fmt.Printf("go-ffmpeg-termvideo %s\n", version)
		return 0
	}

	// Stderr logging is only used before and after playback; the
	// orchestrator switches to -log-file while a display owns the terminal.
	logger := logging.NewLogger(cfg.LogFormat, "warn", cfg.Verbose)
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	logger.Info("starting",
		"version", version,
		"source", cfg.SourceName(),
		"mode", cfg.Mode,
		"backpressure", cfg.Backpressure,
		"metrics_addr", cfg.MetricsAddr,
	)

	orch := orchestrator.New(cfg, logger, orchestrator.WithVersion(version))
	if err := orch.Run(context.Background()); err != nil {
		logger.Error("run_failed", "run_id", orch.RunID(), "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}
