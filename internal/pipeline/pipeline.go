// Package pipeline plays a video source through three concurrent stages:
//
//	decode ──decodeQ──▶ process ──renderQ──▶ render
//
// Each stage is one goroutine. The two bounded queues are the only points
// where stages meet; frames move through them by channel send and are
// never shared. Telemetry lives in a stats.PipelineStats that every stage
// writes and any goroutine may read.
//
// A Pipeline runs once. Stop shuts both queues down, which wakes any
// blocked worker, and returns only after all three have exited.
package pipeline

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/frame"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/logging"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/processor"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/queue"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/retry"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/stats"
)

// Source produces decoded frames. NextFrame returns io.EOF at the end of
// the stream; Seek(0) rewinds.
type Source interface {
	Open(path string) error
	NextFrame() (*image.RGBA, error)
	Seek(index int64) error
	FrameInterval() time.Duration
	Width() int
	Height() int
	FrameCount() int64
	Close() error
}

// Display draws frames and reports the quit key. Only the render worker
// calls Draw and PollQuit; Size is read once by Start.
type Display interface {
	Draw(grid, status string)
	PollQuit() bool
	Size() frame.Dimensions
}

// interrupter is implemented by sources whose NextFrame can block on I/O;
// Interrupt makes a pending read return so Stop can join the decoder.
type interrupter interface {
	Interrupt()
}

// RenderHook observes every rendered frame and its end-to-end latency.
// It runs on the render goroutine and must not block.
type RenderHook func(f frame.ProcessedFrame, latency time.Duration)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithBackoff sets the decode retry backoff.
func WithBackoff(cfg retry.BackoffConfig) Option {
	return func(p *Pipeline) { p.backoff = cfg }
}

// WithSeed fixes the retry jitter seed.
func WithSeed(seed int64) Option {
	return func(p *Pipeline) { p.seed = seed }
}

// WithRenderHook registers a callback for each rendered frame.
func WithRenderHook(h RenderHook) Option {
	return func(p *Pipeline) { p.onRender = h }
}

// QueueDepths reports occupancy and capacity of both queues.
type QueueDepths struct {
	DecodeLen int `json:"decode_len"`
	DecodeCap int `json:"decode_cap"`
	RenderLen int `json:"render_len"`
	RenderCap int `json:"render_cap"`
}

// Pipeline owns the queues, the stats and the three workers of one run.
type Pipeline struct {
	display  Display
	logger   *slog.Logger
	backoff  retry.BackoffConfig
	seed     int64
	onRender RenderHook

	mu    sync.Mutex
	state State
	cfg   Config
	path  string
	src   Source
	dims  frame.Dimensions
	stats *stats.PipelineStats

	decodeQ *queue.BoundedQueue[frame.RawFrame]
	renderQ *queue.BoundedQueue[frame.ProcessedFrame]

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	done     chan struct{}
}

// New creates an idle pipeline that will draw to display.
func New(display Display, opts ...Option) *Pipeline {
	p := &Pipeline{
		display: display,
		logger:  logging.NewDiscardLogger(),
		backoff: retry.DefaultBackoffConfig(),
		seed:    retry.TimeSeed(),
		state:   StateIdle,
		cfg:     DefaultConfig(),
		stats:   stats.NewPipelineStats(stats.DefaultLatencyWindow),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start opens src at path and spawns the workers. It fails with
// ErrAlreadyStarted or ErrStopped if the pipeline is not idle, and with an
// error wrapping ErrSourceOpen if the source cannot be opened; in both
// cases nothing is spawned.
func (p *Pipeline) Start(src Source, path string, cfg Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrStopped
	}

	if err := src.Open(path); err != nil {
		return fmt.Errorf("%w %q: %w", ErrSourceOpen, path, err)
	}

	dims := gridSize(p.display.Size(), cfg.StatusRows)
	proc := processor.New(dims, cfg.Mode,
		processor.WithRamp(cfg.Ramp),
		processor.WithScaler(cfg.Scaler),
	)

	p.cfg = cfg
	p.path = path
	p.src = src
	p.dims = dims
	p.stats = stats.NewPipelineStats(cfg.LatencyWindow)
	p.decodeQ = queue.New[frame.RawFrame](cfg.DecodeQueueSize)
	p.renderQ = queue.New[frame.ProcessedFrame](cfg.RenderQueueSize)
	p.state = StateRunning

	p.wg.Add(3)
	go p.decodeLoop(src, p.stats)
	go p.processLoop(proc, p.stats)
	go p.renderLoop(p.stats)
	go p.reap(src)

	p.logger.Info("pipeline_started",
		"path", path,
		"mode", cfg.Mode.String(),
		"policy", cfg.Policy.String(),
		"cols", dims.Cols,
		"rows", dims.Rows,
		"decode_queue", p.decodeQ.Cap(),
		"render_queue", p.renderQ.Cap(),
		"frame_interval", src.FrameInterval(),
	)
	return nil
}

// gridSize reserves statusRows below the video and never returns less
// than a 1x1 grid.
func gridSize(term frame.Dimensions, statusRows int) frame.Dimensions {
	if statusRows < 0 {
		statusRows = 0
	}
	d := frame.Dimensions{Cols: term.Cols, Rows: term.Rows - statusRows}
	if d.Cols < 1 {
		d.Cols = 1
	}
	if d.Rows < 1 {
		d.Rows = 1
	}
	return d
}

// reap closes the source and Done once every worker has exited.
func (p *Pipeline) reap(src Source) {
	p.wg.Wait()
	if err := src.Close(); err != nil {
		p.logger.Warn("source_close_failed", "error", err)
	}
	snap := p.stats.Snapshot()
	p.logger.Info("pipeline_stopped",
		"decoded", snap.Decoded,
		"processed", snap.Processed,
		"rendered", snap.Rendered,
		"dropped", snap.Dropped,
	)
	close(p.done)
}

// Stop transitions to Stopped, wakes every worker and waits for all of
// them to exit. It is idempotent and safe from any goroutine, including
// before Start.
func (p *Pipeline) Stop() {
	p.shutdown()
	<-p.done
}

// shutdown moves to Stopped and signals the workers without waiting.
// The render worker calls it when the user quits.
func (p *Pipeline) shutdown() {
	p.mu.Lock()
	prev := p.state
	p.state = StateStopped
	decodeQ, renderQ, src := p.decodeQ, p.renderQ, p.src
	p.mu.Unlock()

	p.stopOnce.Do(func() {
		close(p.stop)
		if decodeQ != nil {
			decodeQ.Shutdown()
			renderQ.Shutdown()
		}
		if in, ok := src.(interrupter); ok {
			in.Interrupt()
		}
		if prev == StateIdle {
			// Nothing was spawned, so nobody else will close done.
			close(p.done)
		}
	})
}

// Done is closed once the pipeline has stopped and every worker has
// exited, whether Stop was called or the user quit.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns the telemetry for the current run.
func (p *Pipeline) Stats() *stats.PipelineStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Config returns the configuration passed to Start.
func (p *Pipeline) Config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Dimensions returns the grid size chosen at Start.
func (p *Pipeline) Dimensions() frame.Dimensions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dims
}

// QueueDepths returns current queue occupancy. Zero before Start.
func (p *Pipeline) QueueDepths() QueueDepths {
	p.mu.Lock()
	decodeQ, renderQ := p.decodeQ, p.renderQ
	p.mu.Unlock()

	if decodeQ == nil {
		return QueueDepths{}
	}
	return QueueDepths{
		DecodeLen: decodeQ.Len(),
		DecodeCap: decodeQ.Cap(),
		RenderLen: renderQ.Len(),
		RenderCap: renderQ.Cap(),
	}
}

func (p *Pipeline) stopping() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}
