package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseFlags parses os.Args and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:], os.Stderr)
}

// ParseArgs parses args into a Config. Usage and parse errors are written
// to out.
func ParseArgs(args []string, out io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet("go-ffmpeg-termvideo", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.Usage = func() {
		fmt.Fprintf(out, `go-ffmpeg-termvideo - play video in the terminal through an FFmpeg decode pipeline

Usage:
  go-ffmpeg-termvideo [flags] <VIDEO>
  go-ffmpeg-termvideo [flags] -synthetic

Playback Flags:
`)
		printFlagCategory(fs, out, []string{"mode", "backpressure", "duration", "status-rows"})

		fmt.Fprintf(out, "\nPipeline Tuning:\n")
		printFlagCategory(fs, out, []string{"decode-queue", "render-queue", "latency-window", "ramp", "scaler"})

		fmt.Fprintf(out, "\nFFmpeg:\n")
		printFlagCategory(fs, out, []string{"ffmpeg", "ffprobe", "ffmpeg-loglevel"})

		fmt.Fprintf(out, "\nSynthetic Source:\n")
		printFlagCategory(fs, out, []string{"synthetic", "synthetic-frames", "synthetic-fps", "synthetic-size"})

		fmt.Fprintf(out, "\nDisplay:\n")
		printFlagCategory(fs, out, []string{"tui"})

		fmt.Fprintf(out, "\nObservability:\n")
		printFlagCategory(fs, out, []string{"metrics", "telemetry-interval", "log-file", "log-format", "v"})

		fmt.Fprintf(out, "\nDiagnostics:\n")
		printFlagCategory(fs, out, []string{"skip-preflight", "print-cmd", "print-metrics", "version"})

		fmt.Fprintf(out, `
Flag Convention:
  Single-dash flags (-mode, -tui) are normal options.
  Double-dash flags (--print-cmd, --skip-preflight) are diagnostic modes.

Keys:
  q, Ctrl+C    quit
  d            toggle the stats view (-tui only)

Examples:
  # Play a file as ASCII art
  go-ffmpeg-termvideo clip.mp4

  # 24-bit color, never drop frames
  go-ffmpeg-termvideo -mode color -backpressure clip.mp4

  # Demo without ffmpeg, stop after 10 seconds
  go-ffmpeg-termvideo -synthetic -duration 10s

`)
	}

	// Playback
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, `Render mode: "ascii" or "color"`)
	fs.BoolVar(&cfg.Backpressure, "backpressure", cfg.Backpressure, "Block on full queues instead of dropping frames")
	fs.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Stop after this long (0 = until quit)")
	fs.IntVar(&cfg.StatusRows, "status-rows", cfg.StatusRows, "Terminal rows reserved below the video")

	// Pipeline tuning
	fs.IntVar(&cfg.DecodeQueue, "decode-queue", cfg.DecodeQueue, "Decoded frames buffered before processing")
	fs.IntVar(&cfg.RenderQueue, "render-queue", cfg.RenderQueue, "Processed frames buffered before drawing")
	fs.IntVar(&cfg.LatencyWindow, "latency-window", cfg.LatencyWindow, "Recent frames used for latency percentiles")
	fs.StringVar(&cfg.Ramp, "ramp", cfg.Ramp, "Character ramp from dark to light, or a preset: default, short")
	fs.StringVar(&cfg.Scaler, "scaler", cfg.Scaler, `Resampling: "nearest", "bilinear" or "catmullrom"`)

	// FFmpeg
	fs.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "Path to FFmpeg binary")
	fs.StringVar(&cfg.FFprobePath, "ffprobe", cfg.FFprobePath, "Path to ffprobe binary (default: next to -ffmpeg)")
	fs.StringVar(&cfg.FFmpegLogLevel, "ffmpeg-loglevel", cfg.FFmpegLogLevel, "FFmpeg -loglevel for the decoder")

	// Synthetic source
	fs.BoolVar(&cfg.Synthetic, "synthetic", cfg.Synthetic, "Play a generated test pattern instead of a file")
	fs.Int64Var(&cfg.SyntheticFrames, "synthetic-frames", cfg.SyntheticFrames, "Frames per synthetic loop")
	fs.Float64Var(&cfg.SyntheticFPS, "synthetic-fps", cfg.SyntheticFPS, "Synthetic frame rate")
	fs.StringVar(&cfg.SyntheticSize, "synthetic-size", cfg.SyntheticSize, "Synthetic frame size as WxH")

	// Display
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Draw through the bubbletea dashboard instead of raw ANSI")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, `Prometheus metrics address ("" disables)`)
	fs.DurationVar(&cfg.TelemetryInterval, "telemetry-interval", cfg.TelemetryInterval, "Metrics refresh and /telemetry push interval")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Write logs here during playback (default: discarded)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")

	// Diagnostics (double-dash convention)
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the FFmpeg decode command and exit")
	fs.BoolVar(&cfg.PrintMetrics, "print-metrics", cfg.PrintMetrics, "Scrape and print the final metrics at exit")
	fs.BoolVar(&cfg.ShowVersion, "version", cfg.ShowVersion, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Positional argument: video path
	if rest := fs.Args(); len(rest) >= 1 {
		cfg.VideoPath = rest[0]
	}

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, out io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(out, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(out, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(out)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
