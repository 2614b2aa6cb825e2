// Package orchestrator wires one playback run together: preflight, the
// frame source, the terminal, the pipeline, metrics and the exit summary.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/config"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/display"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/frame"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/logging"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/metrics"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/pipeline"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/preflight"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/process"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/source"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/stats"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/timeseries"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/tui"
)

// ErrPreflight is returned when a preflight check fails.
var ErrPreflight = errors.New("preflight checks failed (use --skip-preflight to override)")

const shutdownTimeout = 5 * time.Second

// Terminal is a pipeline display that takes over the terminal for the
// length of the run.
type Terminal interface {
	pipeline.Display
	Acquire() error
	Release() error
}

// prober is implemented by sources that can describe the stream before
// decoding starts.
type prober interface {
	Probe(ctx context.Context, path string) (*process.VideoInfo, error)
}

// stderrReporter is implemented by sources backed by a subprocess.
type stderrReporter interface {
	Stderr() *logging.StderrHandler
}

// quitNotifier is implemented by terminals that can end on their own.
type quitNotifier interface {
	Done() <-chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSource replaces the source chosen from the config.
func WithSource(src pipeline.Source) Option {
	return func(o *Orchestrator) { o.source = src }
}

// WithTerminal replaces the terminal chosen from the config.
func WithTerminal(t Terminal) Option {
	return func(o *Orchestrator) { o.terminal = t }
}

// WithOutput sets where preflight results, metadata and the exit summary
// are printed. The default is stdout.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

// WithVersion sets the version reported by the info metric.
func WithVersion(v string) Option {
	return func(o *Orchestrator) { o.version = v }
}

// WithRunID fixes the run ID instead of generating one.
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

// Orchestrator coordinates all components for one playback run.
type Orchestrator struct {
	config  *config.Config
	logger  *slog.Logger
	out     io.Writer
	version string
	runID   string

	source    pipeline.Source
	terminal  Terminal
	bandwidth *timeseries.BandwidthTracker
	summary   *stats.RunSummary

	metrics       *metrics.Collector
	metricsServer *metrics.Server
	pipeline      *pipeline.Pipeline

	startTime time.Time
}

// New creates an Orchestrator. logger writes to stderr and is used only
// while the terminal is not owned by a display.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		config:    cfg,
		logger:    logger,
		out:       os.Stdout,
		version:   "dev",
		bandwidth: timeseries.NewBandwidthTracker(),
		summary:   stats.NewRunSummary(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	return o
}

// RunID identifies this run in logs, metrics and the summary.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run plays the video. It blocks until the user quits, the duration
// elapses, a signal arrives or ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	cfg := o.config

	pcfg, err := cfg.PipelineConfig()
	if err != nil {
		return err
	}

	if cfg.PrintCmd {
		return o.printCommand(ctx)
	}

	if !cfg.SkipPreflight {
		result := preflight.RunAll(o.preflightOptions())
		preflight.PrintResults(o.out, result)
		if !result.Passed {
			return ErrPreflight
		}
	}

	playLog, closer, err := logging.PlaybackLogger(cfg.LogFile, cfg.LogFormat, "info", cfg.Verbose)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	playLog = playLog.With("run_id", o.runID)

	src, err := o.newSource(playLog)
	if err != nil {
		return err
	}
	path := cfg.VideoPath

	// Probe before taking the terminal so metadata and open errors land on
	// the normal screen.
	if p, ok := src.(prober); ok {
		probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		_, err := p.Probe(probeCtx, path)
		cancel()
		if err != nil {
			return fmt.Errorf("%w %q: %w", pipeline.ErrSourceOpen, path, err)
		}
	}
	o.printMetadata(src)

	term := o.terminal
	if term == nil {
		term = o.newTerminal(src)
	}

	o.pipeline = pipeline.New(term,
		pipeline.WithLogger(playLog),
		pipeline.WithRenderHook(o.onRender),
	)
	if d, ok := term.(*tui.Display); ok {
		d.SetStatsSource(o.pipeline)
	}

	o.startTime = time.Now()
	if err := o.startMetrics(pcfg); err != nil {
		return err
	}

	if err := term.Acquire(); err != nil {
		o.stopMetrics()
		return fmt.Errorf("acquire terminal: %w", err)
	}

	if err := o.pipeline.Start(src, path, pcfg); err != nil {
		if rerr := term.Release(); rerr != nil {
			o.logger.Warn("terminal_release_failed", "error", rerr)
		}
		o.stopMetrics()
		return o.openError(src, err)
	}
	if o.metricsServer != nil {
		o.metricsServer.SetReady(true)
	}
	playLog.Info("playback_started",
		"source", cfg.SourceName(),
		"mode", pcfg.Mode.String(),
		"policy", pcfg.Policy.String(),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.telemetryLoop(ctx)
	}()

	reason := o.wait(ctx, term)
	playLog.Info("playback_stopping", "reason", reason)

	o.pipeline.Stop()
	cancel()
	wg.Wait()
	o.recordStats()

	if err := term.Release(); err != nil {
		o.logger.Warn("terminal_release_failed", "error", err)
	}

	o.logger.Info("playback_finished", "run_id", o.runID, "reason", reason)
	o.printExitSummary(src)

	if cfg.PrintMetrics && o.metricsServer != nil {
		o.printMetrics(ctx)
	}
	o.stopMetrics()

	return nil
}

// wait blocks until playback should end and returns why.
func (o *Orchestrator) wait(ctx context.Context, term Terminal) string {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	var durationTimer <-chan time.Time
	if o.config.Duration > 0 {
		timer := time.NewTimer(o.config.Duration)
		defer timer.Stop()
		durationTimer = timer.C
	}

	var termDone <-chan struct{}
	if qn, ok := term.(quitNotifier); ok {
		termDone = qn.Done()
	}

	select {
	case sig := <-sigCh:
		return "signal " + sig.String()
	case <-durationTimer:
		return "duration_elapsed"
	case <-o.pipeline.Done():
		return "quit"
	case <-termDone:
		return "display_closed"
	case <-ctx.Done():
		return "context_cancelled"
	}
}

// newSource builds the synthetic or ffmpeg source unless one was injected.
func (o *Orchestrator) newSource(logger *slog.Logger) (pipeline.Source, error) {
	if o.source != nil {
		return o.source, nil
	}
	cfg := o.config
	if cfg.Synthetic {
		sc, err := cfg.SyntheticConfig()
		if err != nil {
			return nil, err
		}
		return source.NewSynthetic(sc), nil
	}
	return source.NewFFmpegSource(
		source.WithFFmpeg(cfg.FFmpegPath),
		source.WithFFprobe(cfg.FFprobePath),
		source.WithLogLevel(cfg.FFmpegLogLevel),
		source.WithSourceLogger(logger, cfg.Verbose),
	), nil
}

// newTerminal picks the bubbletea display for -tui and raw ANSI otherwise.
func (o *Orchestrator) newTerminal(src pipeline.Source) Terminal {
	if o.config.TUIEnabled {
		return tui.NewDisplay(tui.DisplayConfig{
			Title:     "go-ffmpeg-termvideo " + o.config.SourceName(),
			TargetFPS: fpsOf(src.FrameInterval()),
			Bandwidth: o.bandwidth,
		})
	}
	return display.NewANSI(display.WithBandwidth(o.bandwidth))
}

func (o *Orchestrator) preflightOptions() preflight.Options {
	opts := preflight.Options{
		FFmpegPath:  o.config.FFmpegPath,
		FFprobePath: o.config.FFprobePath,
		Input:       o.config.VideoPath,
		Synthetic:   o.config.Synthetic || o.source != nil,
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = process.FindFFprobe(opts.FFmpegPath)
	}
	if o.terminal != nil {
		size := o.terminal.Size()
		opts.Terminal = &size
	} else if size, ok := display.TerminalSize(os.Stdout); ok {
		opts.Terminal = &size
	}
	return opts
}

// onRender runs on the render goroutine for every drawn frame.
func (o *Orchestrator) onRender(_ frame.ProcessedFrame, latency time.Duration) {
	o.summary.Observe(latency)
	if o.metrics != nil {
		o.metrics.RecordLatency(latency)
	}
}

// openError adds the decoder's last stderr line to a failed open.
func (o *Orchestrator) openError(src pipeline.Source, err error) error {
	if sr, ok := src.(stderrReporter); ok && sr.Stderr() != nil {
		if last := sr.Stderr().LastError(); last != "" && !strings.Contains(err.Error(), last) {
			return fmt.Errorf("%w (ffmpeg: %s)", err, last)
		}
	}
	return err
}

func fpsOf(interval time.Duration) float64 {
	if interval <= 0 {
		return source.DefaultFPS
	}
	return float64(time.Second) / float64(interval)
}

// =============================================================================
// Metrics
// =============================================================================

// telemetrySample is one /telemetry websocket message.
type telemetrySample struct {
	RunID          string               `json:"run_id"`
	State          string               `json:"state"`
	ElapsedSeconds float64              `json:"elapsed_seconds"`
	Stats          stats.Snapshot       `json:"stats"`
	Queues         pipeline.QueueDepths `json:"queues"`
	DisplayBytes   int64                `json:"display_bytes"`
	DisplayRate    float64              `json:"display_bytes_per_second"`
}

// startMetrics starts the exporter on its own registry. An empty address
// disables it.
func (o *Orchestrator) startMetrics(pcfg pipeline.Config) error {
	cfg := o.config
	if cfg.MetricsAddr == "" {
		return nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	o.metrics = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		RunID:   o.runID,
		Version: o.version,
		Source:  cfg.SourceName(),
		Mode:    pcfg.Mode.String(),
		Policy:  pcfg.Policy.String(),
	}, reg)

	o.metricsServer = metrics.NewServer(cfg.MetricsAddr, o.logger,
		metrics.WithGatherer(reg),
		metrics.WithTelemetry(o.telemetrySample, cfg.TelemetryInterval),
	)
	if err := o.metricsServer.Start(); err != nil {
		o.metricsServer = nil
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	o.logger.Info("metrics_listening", "addr", o.metricsServer.Addr())
	return nil
}

func (o *Orchestrator) stopMetrics() {
	if o.metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := o.metricsServer.Shutdown(ctx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}
}

func (o *Orchestrator) telemetrySample() any {
	var elapsed float64
	if !o.startTime.IsZero() {
		elapsed = time.Since(o.startTime).Seconds()
	}
	bw := o.bandwidth.Stats()
	return telemetrySample{
		RunID:          o.runID,
		State:          o.pipeline.State().String(),
		ElapsedSeconds: elapsed,
		Stats:          o.pipeline.Stats().Snapshot(),
		Queues:         o.pipeline.QueueDepths(),
		DisplayBytes:   bw.TotalBytes,
		DisplayRate:    bw.Rate10s,
	}
}

// telemetryLoop samples display throughput and refreshes the collector.
func (o *Orchestrator) telemetryLoop(ctx context.Context) {
	ticker := time.NewTicker(o.config.TelemetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.recordStats()
		}
	}
}

func (o *Orchestrator) recordStats() {
	o.bandwidth.Sample()
	if o.metrics == nil {
		return
	}
	o.metrics.RecordStats(&metrics.StatsUpdate{
		Snapshot:  o.pipeline.Stats().Snapshot(),
		Queues:    o.pipeline.QueueDepths(),
		Bandwidth: o.bandwidth.Stats(),
	})
}

// printMetrics scrapes our own endpoint once so the printed values are
// exactly what Prometheus would have seen.
func (o *Orchestrator) printMetrics(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	families, err := metrics.Scrape(ctx, "http://"+o.metricsServer.Addr()+"/metrics")
	if err != nil {
		o.logger.Warn("metrics_scrape_failed", "error", err)
		return
	}
	fmt.Fprintln(o.out, "Final metrics:")
	fmt.Fprintln(o.out, families.Format(metrics.Namespace+"_"))
}

// =============================================================================
// Output
// =============================================================================

// printMetadata prints the stream description before playback.
func (o *Orchestrator) printMetadata(src pipeline.Source) {
	frames := "unknown"
	if n := src.FrameCount(); n > 0 {
		frames = stats.FormatNumber(n)
	}
	interval := src.FrameInterval()
	fmt.Fprintf(o.out, "%s: %dx%d, %.2f fps, %s frames, %s per frame\n",
		o.config.SourceName(), src.Width(), src.Height(), fpsOf(interval), frames, interval)
}

// printCommand prints the ffmpeg decode command for --print-cmd.
func (o *Orchestrator) printCommand(ctx context.Context) error {
	cfg := o.config
	if cfg.Synthetic {
		fmt.Fprintln(o.out, "# synthetic source: no ffmpeg command is run")
		return nil
	}

	input := cfg.VideoPath
	if input == "" {
		input = "INPUT"
	}
	dc := process.DefaultDecodeConfig(input)
	dc.BinaryPath = cfg.FFmpegPath
	dc.LogLevel = cfg.FFmpegLogLevel

	probePath := cfg.FFprobePath
	if probePath == "" {
		probePath = process.FindFFprobe(cfg.FFmpegPath)
	}
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if info, err := process.Probe(probeCtx, probePath, input); err == nil {
		dc.Width, dc.Height = info.Width, info.Height
		if info.FPS > 0 {
			dc.FPS = info.FPS
		}
		fmt.Fprintln(o.out, "# FFmpeg decode command:")
	} else {
		// scale=0:0 keeps the input size.
		fmt.Fprintf(o.out, "# FFmpeg decode command (probe failed, size unknown: %v):\n", err)
	}
	fmt.Fprintln(o.out)
	fmt.Fprintln(o.out, process.NewFFmpegDecoder(dc).CommandString())
	return nil
}

// printExitSummary prints the report after the terminal is released.
func (o *Orchestrator) printExitSummary(src pipeline.Source) {
	var warnings map[string]int
	if sr, ok := src.(stderrReporter); ok && sr.Stderr() != nil {
		warnings = sr.Stderr().CountErrors()
	}
	pcfg := o.pipeline.Config()

	var metricsAddr string
	if o.metricsServer != nil {
		metricsAddr = o.metricsServer.Addr()
	}

	fmt.Fprint(o.out, stats.FormatExitSummary(
		o.pipeline.Stats().Snapshot(),
		o.summary.Quantiles(),
		stats.SummaryConfig{
			RunID:           o.runID,
			Source:          o.config.SourceName(),
			Mode:            pcfg.Mode.String(),
			Policy:          pcfg.Policy.String(),
			Dims:            o.pipeline.Dimensions(),
			Duration:        time.Since(o.startTime),
			MetricsAddr:     metricsAddr,
			Bandwidth:       o.bandwidth.Stats(),
			DecoderWarnings: warnings,
		},
	))
}

// Pipeline returns the pipeline of the current run, nil before Run.
func (o *Orchestrator) Pipeline() *pipeline.Pipeline {
	return o.pipeline
}

// Metrics returns the metrics collector, nil when metrics are disabled.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}
