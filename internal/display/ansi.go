// Package display draws rendered frames straight to a terminal with ANSI
// escape sequences.
package display

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/cancelreader"
	"golang.org/x/term"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/frame"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/timeseries"
)

// Escape sequences.
const (
	altScreenOn  = "\x1b[?1049h"
	altScreenOff = "\x1b[?1049l"
	hideCursor   = "\x1b[?25l"
	showCursor   = "\x1b[?25h"
	clearScreen  = "\x1b[2J"
	cursorHome   = "\x1b[H"
	clearLine    = "\x1b[K"
	resetStyle   = "\x1b[0m"
)

// FallbackSize is used when the output is not a terminal.
var FallbackSize = frame.Dimensions{Cols: 80, Rows: 24}

var statusStyle = lipgloss.NewStyle().Reverse(true)

// Option configures an ANSI display.
type Option func(*ANSI)

// WithInput sets where quit keys are read from. Default os.Stdin.
func WithInput(r io.Reader) Option {
	return func(a *ANSI) { a.in = r }
}

// WithOutput sets where frames are written. Default os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *ANSI) { a.out = w }
}

// WithSize fixes the reported terminal size.
func WithSize(d frame.Dimensions) Option {
	return func(a *ANSI) { a.size = &d }
}

// WithBandwidth counts every byte written to the terminal.
func WithBandwidth(bw *timeseries.BandwidthTracker) Option {
	return func(a *ANSI) { a.bw = bw }
}

// ANSI writes each frame as a single escape-sequence burst: cursor home,
// the grid, then a reverse-video status line below it.
//
// Draw and PollQuit are called from one goroutine. Acquire and Release
// bracket a run. Done closes on the first quit key, so a run that is not
// drawing can still be stopped from the keyboard.
type ANSI struct {
	in   io.Reader
	out  io.Writer
	size *frame.Dimensions
	bw   *timeseries.BandwidthTracker

	quit     atomic.Bool
	done     chan struct{}
	quitOnce sync.Once
	buf      bytes.Buffer

	mu       sync.Mutex
	acquired bool
	oldState *term.State
	reader   cancelreader.CancelReader
	keysDone chan struct{}
}

// NewANSI creates a display on stdin and stdout.
func NewANSI(opts ...Option) *ANSI {
	a := &ANSI{in: os.Stdin, out: os.Stdout, done: make(chan struct{})}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Size returns the terminal size in cells.
func (a *ANSI) Size() frame.Dimensions {
	if a.size != nil {
		return *a.size
	}
	if d, ok := TerminalSize(a.out); ok {
		return d
	}
	return FallbackSize
}

// TerminalSize reports the size of w if it is a terminal.
func TerminalSize(w any) (frame.Dimensions, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return frame.Dimensions{}, false
	}
	cols, rows, err := term.GetSize(int(f.Fd()))
	if err != nil || cols <= 0 || rows <= 0 {
		return frame.Dimensions{}, false
	}
	return frame.Dimensions{Cols: cols, Rows: rows}, true
}

// Acquire puts the input in raw mode when it is a terminal, switches to
// the alternate screen, hides the cursor and starts watching for quit
// keys.
func (a *ANSI) Acquire() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.acquired {
		return nil
	}

	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		st, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		a.oldState = st
	}

	if a.in != nil {
		r, err := cancelreader.NewReader(a.in)
		if err != nil {
			a.restoreLocked()
			return fmt.Errorf("key reader: %w", err)
		}
		a.reader = r
		a.keysDone = make(chan struct{})
		go a.readKeys(r, a.keysDone)
	}

	if _, err := io.WriteString(a.out, altScreenOn+hideCursor+clearScreen); err != nil {
		a.stopKeysLocked()
		a.restoreLocked()
		return fmt.Errorf("enter alternate screen: %w", err)
	}
	a.acquired = true
	return nil
}

// readKeys watches for q, Q or ctrl-c. Raw mode turns off ISIG, so
// ctrl-c arrives here as a byte instead of SIGINT.
func (a *ANSI) readKeys(r io.Reader, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		if isQuit(buf[:n]) {
			a.requestQuit()
		}
		if err != nil {
			return
		}
	}
}

func isQuit(b []byte) bool {
	return bytes.ContainsAny(b, "qQ\x03")
}

// Release restores the screen, cursor and terminal mode. It is safe to
// call more than once.
func (a *ANSI) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.acquired {
		return nil
	}
	a.acquired = false

	a.stopKeysLocked()
	_, werr := io.WriteString(a.out, resetStyle+showCursor+altScreenOff)
	return errors.Join(werr, a.restoreLocked())
}

func (a *ANSI) stopKeysLocked() {
	if a.reader == nil {
		return
	}
	// A reader that cannot be canceled stays blocked until the next key;
	// it only touches the quit flag, so it is left behind.
	if a.reader.Cancel() {
		<-a.keysDone
	}
	a.reader.Close()
	a.reader = nil
}

func (a *ANSI) restoreLocked() error {
	if a.oldState == nil {
		return nil
	}
	f := a.in.(*os.File)
	err := term.Restore(int(f.Fd()), a.oldState)
	a.oldState = nil
	return err
}

// Draw writes grid from the top-left corner and status on the row below
// the grid. Lines are terminated with CRLF so raw mode renders the same.
func (a *ANSI) Draw(grid, status string) {
	a.buf.Reset()
	a.buf.WriteString(cursorHome)

	rows := 0
	for _, line := range strings.Split(grid, "\n") {
		if rows > 0 {
			a.buf.WriteString("\r\n")
		}
		a.buf.WriteString(line)
		rows++
	}
	a.buf.WriteString(resetStyle)

	cols := a.Size().Cols
	if len(status) > cols {
		status = status[:cols]
	}
	fmt.Fprintf(&a.buf, "\x1b[%d;1H", rows+1)
	a.buf.WriteString(statusStyle.Render(status))
	a.buf.WriteString(clearLine)

	n, _ := a.out.Write(a.buf.Bytes())
	if a.bw != nil {
		a.bw.Add(n)
	}
}

// PollQuit reports whether a quit key has been pressed.
func (a *ANSI) PollQuit() bool {
	return a.quit.Load()
}

// Done is closed once a quit key has been read.
func (a *ANSI) Done() <-chan struct{} {
	return a.done
}

func (a *ANSI) requestQuit() {
	a.quitOnce.Do(func() {
		a.quit.Store(true)
		close(a.done)
	})
}
