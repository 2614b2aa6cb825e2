package pipeline

import (
	"errors"
	"image"
	"image/color"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/frame"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/retry"
)

// =============================================================================
// Test doubles
// =============================================================================

// fakeSource yields n small frames. With loop set it rewinds on Seek(0);
// otherwise it stays at end of stream once exhausted.
type fakeSource struct {
	n        int
	loop     bool
	interval time.Duration
	openErr  error
	frameErr error        // returned by every NextFrame when set
	decodeIn time.Duration // simulated decode cost

	mu     sync.Mutex
	pos    int
	served int

	seeks  atomic.Int64
	closed atomic.Bool
}

func (s *fakeSource) Open(string) error { return s.openErr }

func (s *fakeSource) NextFrame() (*image.RGBA, error) {
	if s.frameErr != nil {
		return nil, s.frameErr
	}
	if s.decodeIn > 0 {
		time.Sleep(s.decodeIn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= s.n {
		return nil, io.EOF
	}
	s.pos++
	s.served++

	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	v := uint8(s.pos * 20)
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img, nil
}

func (s *fakeSource) Seek(index int64) error {
	s.seeks.Add(1)
	if !s.loop {
		return nil
	}
	s.mu.Lock()
	s.pos = int(index)
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) FrameInterval() time.Duration { return s.interval }
func (s *fakeSource) Width() int                   { return 8 }
func (s *fakeSource) Height() int                  { return 4 }
func (s *fakeSource) FrameCount() int64            { return int64(s.n) }

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeSource) Served() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.served
}

// fakeDisplay records draws. drawDelay simulates a slow terminal; quitAfter
// makes PollQuit report a keypress once that many frames were drawn.
type fakeDisplay struct {
	size      frame.Dimensions
	drawDelay time.Duration
	quitAfter int64

	draws atomic.Int64

	mu         sync.Mutex
	lastGrid   string
	lastStatus string
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{size: frame.Dimensions{Cols: 16, Rows: 8}}
}

func (d *fakeDisplay) Draw(grid, status string) {
	if d.drawDelay > 0 {
		time.Sleep(d.drawDelay)
	}
	d.mu.Lock()
	d.lastGrid, d.lastStatus = grid, status
	d.mu.Unlock()
	d.draws.Add(1)
}

func (d *fakeDisplay) PollQuit() bool {
	return d.quitAfter > 0 && d.draws.Load() >= d.quitAfter
}

func (d *fakeDisplay) Size() frame.Dimensions { return d.size }

func (d *fakeDisplay) Status() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastStatus
}

// =============================================================================
// Helpers
// =============================================================================

var errDecode = errors.New("decode failed")

// fastBackoff keeps retry loops from spinning without slowing tests down.
func fastBackoff() Option {
	return WithBackoff(retry.BackoffConfig{
		Initial:    time.Millisecond,
		Max:        5 * time.Millisecond,
		Multiplier: 2,
	})
}

func testConfig(policy FlowPolicy, capacity int) Config {
	cfg := DefaultConfig()
	cfg.Policy = policy
	cfg.DecodeQueueSize = capacity
	cfg.RenderQueueSize = capacity
	return cfg
}

// eventually polls cond until it holds or the timeout passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out after %v: %s", timeout, msg)
}

// stopWithin fails the test if Stop does not return in time.
func stopWithin(t *testing.T, p *Pipeline, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("Stop() did not return within %v", timeout)
	}
}
