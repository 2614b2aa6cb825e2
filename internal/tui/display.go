package tui

import (
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/display"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/frame"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/timeseries"
)

// DisplayConfig configures a Bubble Tea display.
type DisplayConfig struct {
	Title     string
	TargetFPS float64

	// Input and Output default to the process's stdin and stdout.
	Input  io.Reader
	Output io.Writer

	// Size fixes the reported grid size instead of querying the terminal.
	Size *frame.Dimensions

	// Bandwidth counts grid and status bytes handed to the renderer.
	Bandwidth *timeseries.BandwidthTracker
}

// Display adapts a Bubble Tea program to the pipeline's display contract.
// Frames are delivered as messages; the program renders at its own rate.
type Display struct {
	cfg    DisplayConfig
	shared *shared
	source StatsSource

	running atomic.Bool

	mu       sync.Mutex
	prog     *tea.Program
	done     chan struct{}
	runErr   error
	released bool
}

// NewDisplay creates a display. The program starts on Acquire.
func NewDisplay(cfg DisplayConfig) *Display {
	if cfg.Title == "" {
		cfg.Title = "go-ffmpeg-termvideo"
	}
	return &Display{cfg: cfg, shared: &shared{}}
}

// SetStatsSource attaches the live stats shown by the d panel. It must be
// called before Acquire.
func (d *Display) SetStatsSource(s StatsSource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.source = s
}

// Acquire starts the program on the alternate screen.
func (d *Display) Acquire() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.prog != nil {
		return nil
	}

	model := newModel(Config{
		Title:       d.cfg.Title,
		TargetFPS:   d.cfg.TargetFPS,
		StatsSource: d.source,
	}, d.shared)

	// Signals are left to the caller, which stops the pipeline first.
	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithoutSignalHandler()}
	if d.cfg.Input != nil {
		opts = append(opts, tea.WithInput(d.cfg.Input))
	}
	if d.cfg.Output != nil {
		opts = append(opts, tea.WithOutput(d.cfg.Output))
	}

	d.prog = tea.NewProgram(model, opts...)
	d.done = make(chan struct{})
	d.running.Store(true)

	go func(p *tea.Program, done chan struct{}) {
		defer close(done)
		_, err := p.Run()
		d.running.Store(false)
		// However the program ended, playback should stop with it.
		d.shared.quit.Store(true)
		d.mu.Lock()
		d.runErr = err
		d.mu.Unlock()
	}(d.prog, d.done)

	return nil
}

// Release stops the program and restores the terminal.
func (d *Display) Release() error {
	d.mu.Lock()
	prog, done := d.prog, d.done
	if prog == nil || d.released {
		d.mu.Unlock()
		return nil
	}
	d.released = true
	d.mu.Unlock()

	prog.Quit()
	<-done

	d.mu.Lock()
	defer d.mu.Unlock()
	if errors.Is(d.runErr, tea.ErrInterrupted) {
		return nil
	}
	return d.runErr
}

// Draw hands a frame to the program. Frames drawn while the program is
// not running are discarded.
func (d *Display) Draw(grid, status string) {
	if !d.running.Load() {
		return
	}
	d.prog.Send(FrameMsg{Grid: grid, Status: status})
	if d.cfg.Bandwidth != nil {
		d.cfg.Bandwidth.Add(len(grid) + len(status))
	}
}

// PollQuit reports whether the user quit or the program exited.
func (d *Display) PollQuit() bool {
	return d.shared.quit.Load()
}

// Size returns the terminal size, the last size Bubble Tea reported, or
// display.FallbackSize.
func (d *Display) Size() frame.Dimensions {
	if d.cfg.Size != nil {
		return *d.cfg.Size
	}
	out := d.cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if dims, ok := display.TerminalSize(out); ok {
		return dims
	}
	if c, r := d.shared.cols.Load(), d.shared.rows.Load(); c > 0 && r > 0 {
		return frame.Dimensions{Cols: int(c), Rows: int(r)}
	}
	return display.FallbackSize
}

// Done is closed when the program has exited. Nil before Acquire.
func (d *Display) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}
