package pipeline

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/frame"
)

// =============================================================================
// Tests: lifecycle
// =============================================================================

func TestStart_SourceOpenFailure(t *testing.T) {
	p := New(newFakeDisplay())
	src := &fakeSource{n: 10, openErr: os.ErrNotExist}

	err := p.Start(src, "missing.mp4", DefaultConfig())
	if !errors.Is(err, ErrSourceOpen) {
		t.Fatalf("Start() error = %v, want ErrSourceOpen", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Start() error = %v, should wrap the source error", err)
	}
	if !strings.Contains(err.Error(), "missing.mp4") {
		t.Errorf("Start() error = %q, should name the path", err)
	}
	if p.State() != StateIdle {
		t.Errorf("State() = %v, want idle", p.State())
	}

	// A failed start leaves a usable idle pipeline.
	if err := p.Start(&fakeSource{n: 1, interval: time.Millisecond}, "ok", DefaultConfig()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	stopWithin(t, p, 2*time.Second)
}

func TestStart_Twice(t *testing.T) {
	p := New(newFakeDisplay(), fastBackoff())
	src := &fakeSource{n: 3, interval: time.Millisecond}

	if err := p.Start(src, "a", DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	if err := p.Start(src, "a", DefaultConfig()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
	if p.State() != StateRunning {
		t.Errorf("State() = %v, want running", p.State())
	}
}

func TestStart_AfterStop(t *testing.T) {
	p := New(newFakeDisplay())
	p.Stop()

	err := p.Start(&fakeSource{n: 1}, "a", DefaultConfig())
	if !errors.Is(err, ErrStopped) {
		t.Errorf("Start() after Stop error = %v, want ErrStopped", err)
	}
}

func TestStop_BeforeStart(t *testing.T) {
	p := New(newFakeDisplay())
	stopWithin(t, p, time.Second)

	if p.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", p.State())
	}
	select {
	case <-p.Done():
	default:
		t.Error("Done() not closed after Stop on idle pipeline")
	}
	if d := p.QueueDepths(); d != (QueueDepths{}) {
		t.Errorf("QueueDepths() = %+v before start, want zero", d)
	}
}

func TestStop_IdempotentAndConcurrent(t *testing.T) {
	p := New(newFakeDisplay(), fastBackoff())
	src := &fakeSource{n: 100, loop: true, interval: time.Millisecond}
	if err := p.Start(src, "a", DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Stop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("concurrent Stop() calls did not all return")
	}

	p.Stop()
	if p.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", p.State())
	}
	if !src.closed.Load() {
		t.Error("source not closed after Stop")
	}
}

func TestStop_WakesBlockedWorkers(t *testing.T) {
	disp := newFakeDisplay()
	disp.drawDelay = 100 * time.Millisecond
	p := New(disp, fastBackoff())

	// Capacity 1 and backpressure: decode and process end up blocked in Push.
	src := &fakeSource{n: 1000, loop: true, interval: time.Microsecond}
	if err := p.Start(src, "a", testConfig(FlowBackpressure, 1)); err != nil {
		t.Fatal(err)
	}

	eventually(t, 2*time.Second, func() bool {
		d := p.QueueDepths()
		return d.DecodeLen == 1 && d.RenderLen == 1
	}, "queues never filled")

	stopWithin(t, p, 2*time.Second)
}

func TestStop_RefusedFramesNotCounted(t *testing.T) {
	disp := newFakeDisplay()
	disp.drawDelay = 200 * time.Millisecond
	p := New(disp, fastBackoff())

	// Both producers end up blocked in Push holding a frame when Stop
	// shuts the queues down.
	src := &fakeSource{n: 1000, loop: true, interval: time.Microsecond}
	if err := p.Start(src, "a", testConfig(FlowBackpressure, 1)); err != nil {
		t.Fatal(err)
	}

	eventually(t, 2*time.Second, func() bool {
		d := p.QueueDepths()
		return d.DecodeLen == 1 && d.RenderLen == 1 && p.Stats().Rendered.Load() >= 1
	}, "queues never filled")

	stopWithin(t, p, 2*time.Second)

	s := p.Stats().Snapshot()
	d := p.QueueDepths()

	// Every frame handed to the render queue was drawn or is still queued.
	if got := s.Rendered + s.DroppedProcess + int64(d.RenderLen); s.Processed != got {
		t.Errorf("Processed = %d, want rendered+dropped+queued = %d", s.Processed, got)
	}
	// Only the frame the process worker was holding may be unaccounted.
	if gap := s.Decoded - (s.Processed + s.DroppedDecode + int64(d.DecodeLen)); gap < 0 || gap > 1 {
		t.Errorf("decode stage gap = %d, want 0 or 1 (%+v, decode queue %d)", gap, s, d.DecodeLen)
	}
}

func TestStop_Quiescent(t *testing.T) {
	p := New(newFakeDisplay(), fastBackoff())
	src := &fakeSource{n: 50, loop: true, interval: time.Millisecond}
	if err := p.Start(src, "a", DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	eventually(t, 2*time.Second, func() bool { return p.Stats().Rendered.Load() > 5 }, "no frames rendered")
	p.Stop()

	before := p.Stats().Snapshot()
	time.Sleep(50 * time.Millisecond)
	after := p.Stats().Snapshot()

	if before.Decoded != after.Decoded ||
		before.Processed != after.Processed ||
		before.Rendered != after.Rendered ||
		before.Dropped != after.Dropped ||
		before.DecodeRetries != after.DecodeRetries {
		t.Errorf("counters changed after Stop: %+v -> %+v", before, after)
	}
}

func TestQuitKey_StopsPipeline(t *testing.T) {
	disp := newFakeDisplay()
	disp.quitAfter = 3
	p := New(disp, fastBackoff())

	src := &fakeSource{n: 100, loop: true, interval: time.Millisecond}
	if err := p.Start(src, "a", testConfig(FlowBackpressure, 4)); err != nil {
		t.Fatal(err)
	}

	select {
	case <-p.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("pipeline did not stop after quit key")
	}

	if p.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", p.State())
	}
	if got := p.Stats().Rendered.Load(); got != 3 {
		t.Errorf("Rendered = %d, want 3", got)
	}
	stopWithin(t, p, time.Second)
}

// =============================================================================
// Tests: geometry and status
// =============================================================================

func TestGridSize(t *testing.T) {
	tests := []struct {
		name       string
		term       frame.Dimensions
		statusRows int
		want       frame.Dimensions
	}{
		{"standard", frame.Dimensions{Cols: 80, Rows: 24}, 2, frame.Dimensions{Cols: 80, Rows: 22}},
		{"no status", frame.Dimensions{Cols: 80, Rows: 24}, 0, frame.Dimensions{Cols: 80, Rows: 24}},
		{"negative status", frame.Dimensions{Cols: 80, Rows: 24}, -3, frame.Dimensions{Cols: 80, Rows: 24}},
		{"tiny terminal", frame.Dimensions{Cols: 0, Rows: 1}, 2, frame.Dimensions{Cols: 1, Rows: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gridSize(tt.term, tt.statusRows); got != tt.want {
				t.Errorf("gridSize(%+v, %d) = %+v, want %+v", tt.term, tt.statusRows, got, tt.want)
			}
		})
	}
}

func TestStart_DimensionsAndStatusLine(t *testing.T) {
	disp := newFakeDisplay()
	disp.size = frame.Dimensions{Cols: 20, Rows: 12}
	p := New(disp, fastBackoff())

	cfg := testConfig(FlowDrop, 3)
	if err := p.Start(&fakeSource{n: 20, loop: true, interval: time.Millisecond}, "a", cfg); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	if got := p.Dimensions(); got != (frame.Dimensions{Cols: 20, Rows: 10}) {
		t.Errorf("Dimensions() = %+v, want 20x10", got)
	}
	if got := p.Config().DecodeQueueSize; got != 3 {
		t.Errorf("Config().DecodeQueueSize = %d, want 3", got)
	}

	eventually(t, 2*time.Second, func() bool { return disp.draws.Load() > 0 }, "nothing drawn")

	status := disp.Status()
	for _, want := range []string{"FPS D:", "| Q ", "/3 ", "q=quit"} {
		if !strings.Contains(status, want) {
			t.Errorf("status %q missing %q", status, want)
		}
	}

	disp.mu.Lock()
	grid := disp.lastGrid
	disp.mu.Unlock()
	if lines := strings.Split(grid, "\n"); len(lines) != 10 || len(lines[0]) != 20 {
		t.Errorf("grid is %d lines of %d, want 10 of 20", len(lines), len(lines[0]))
	}
}

// =============================================================================
// Tests: decode behavior
// =============================================================================

func TestDecode_LoopsAndResetsFrameID(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []frame.ID
	)
	hook := func(f frame.ProcessedFrame, latency time.Duration) {
		if latency < 0 {
			t.Errorf("negative latency %v", latency)
		}
		mu.Lock()
		ids = append(ids, f.ID)
		mu.Unlock()
	}

	p := New(newFakeDisplay(), fastBackoff(), WithRenderHook(hook))
	src := &fakeSource{n: 4, loop: true, interval: time.Millisecond}
	if err := p.Start(src, "a", testConfig(FlowBackpressure, 2)); err != nil {
		t.Fatal(err)
	}

	eventually(t, 3*time.Second, func() bool { return p.Stats().Loops.Load() >= 2 }, "source never looped")
	p.Stop()

	mu.Lock()
	defer mu.Unlock()

	// Backpressure: every frame arrives, so IDs go 0,1,2,3,0,1,2,3,...
	for i, id := range ids {
		if want := frame.ID(i % 4); id != want {
			t.Fatalf("ids[%d] = %d, want %d (ids=%v)", i, id, want, ids)
		}
	}
	if src.seeks.Load() < 2 {
		t.Errorf("seeks = %d, want >= 2", src.seeks.Load())
	}
}

func TestDecode_ErrorsAreRetried(t *testing.T) {
	p := New(newFakeDisplay(), fastBackoff())
	src := &fakeSource{n: 10, frameErr: errDecode, interval: time.Millisecond}
	if err := p.Start(src, "a", DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	eventually(t, 2*time.Second, func() bool { return p.Stats().DecodeRetries.Load() >= 3 }, "no retries recorded")
	if p.State() != StateRunning {
		t.Errorf("State() = %v, decode errors must not stop the pipeline", p.State())
	}
	stopWithin(t, p, time.Second)

	if got := p.Stats().Decoded.Load(); got != 0 {
		t.Errorf("Decoded = %d, want 0", got)
	}
}

func TestDecode_Pacing(t *testing.T) {
	p := New(newFakeDisplay(), fastBackoff())
	src := &fakeSource{n: 6, interval: 20 * time.Millisecond}

	start := time.Now()
	if err := p.Start(src, "a", testConfig(FlowBackpressure, 8)); err != nil {
		t.Fatal(err)
	}
	eventually(t, 3*time.Second, func() bool { return p.Stats().Decoded.Load() == 6 }, "frames not decoded")
	elapsed := time.Since(start)
	p.Stop()

	// Six frames are five intervals apart.
	if elapsed < 90*time.Millisecond {
		t.Errorf("6 frames at 20ms took %v, want >= ~100ms", elapsed)
	}
}

func TestDecode_PacingMissesCounted(t *testing.T) {
	p := New(newFakeDisplay(), fastBackoff())
	src := &fakeSource{n: 10, interval: time.Millisecond, decodeIn: 5 * time.Millisecond}
	if err := p.Start(src, "a", testConfig(FlowBackpressure, 8)); err != nil {
		t.Fatal(err)
	}
	eventually(t, 3*time.Second, func() bool { return p.Stats().Decoded.Load() == 10 }, "frames not decoded")
	p.Stop()

	if got := p.Stats().PacingMisses.Load(); got == 0 {
		t.Error("PacingMisses = 0 for a source slower than its frame interval")
	}
}

// =============================================================================
// Tests: flow control scenarios
// =============================================================================

func TestScenario_DropPolicySlowRender(t *testing.T) {
	disp := newFakeDisplay()
	disp.drawDelay = 30 * time.Millisecond
	p := New(disp, fastBackoff())

	src := &fakeSource{n: 10, interval: 2 * time.Millisecond}
	if err := p.Start(src, "clip", testConfig(FlowDrop, 1)); err != nil {
		t.Fatal(err)
	}

	eventually(t, 3*time.Second, func() bool { return src.Served() == 10 }, "source not exhausted")

	st := p.Stats()
	// Wait for the last frames to leave the queues, then check conservation.
	eventually(t, 3*time.Second, func() bool {
		s := st.Snapshot()
		d := p.QueueDepths()
		return d.DecodeLen == 0 && d.RenderLen == 0 &&
			s.Decoded == s.Processed+s.DroppedDecode &&
			s.Processed == s.Rendered+s.DroppedProcess
	}, "pipeline did not drain to a balanced state")

	p.Stop()
	snap := st.Snapshot()

	if snap.Decoded != 10 {
		t.Errorf("Decoded = %d, want 10", snap.Decoded)
	}
	if snap.Rendered >= snap.Decoded {
		t.Errorf("Rendered = %d, want < Decoded (%d)", snap.Rendered, snap.Decoded)
	}
	if snap.Dropped == 0 {
		t.Error("Dropped = 0, want > 0 under drop policy with a slow display")
	}
	if snap.Dropped != snap.DroppedDecode+snap.DroppedProcess {
		t.Errorf("Dropped = %d, want %d+%d", snap.Dropped, snap.DroppedDecode, snap.DroppedProcess)
	}
}

func TestScenario_BackpressureNoDrops(t *testing.T) {
	disp := newFakeDisplay()
	disp.drawDelay = 10 * time.Millisecond
	p := New(disp, fastBackoff())

	src := &fakeSource{n: 10, interval: 2 * time.Millisecond}
	if err := p.Start(src, "clip", testConfig(FlowBackpressure, 1)); err != nil {
		t.Fatal(err)
	}

	st := p.Stats()
	eventually(t, 3*time.Second, func() bool { return st.Rendered.Load() == 10 }, "not all frames rendered")

	// Give the loop a moment to hit end of stream and retry; nothing new may appear.
	time.Sleep(30 * time.Millisecond)
	p.Stop()
	snap := st.Snapshot()

	if snap.Dropped != 0 {
		t.Errorf("Dropped = %d, want 0 under backpressure", snap.Dropped)
	}
	if snap.Decoded != 10 || snap.Processed != 10 || snap.Rendered != 10 {
		t.Errorf("decoded/processed/rendered = %d/%d/%d, want 10/10/10",
			snap.Decoded, snap.Processed, snap.Rendered)
	}
	if snap.Loops != 1 {
		t.Errorf("Loops = %d, want 1", snap.Loops)
	}
	if snap.DecodeRetries == 0 {
		t.Error("exhausted one-shot source should be retried with backoff")
	}
}

func TestBackpressure_StopDoesNotCountDrops(t *testing.T) {
	disp := newFakeDisplay()
	disp.drawDelay = 20 * time.Millisecond
	p := New(disp, fastBackoff())

	src := &fakeSource{n: 1000, loop: true, interval: time.Microsecond}
	if err := p.Start(src, "a", testConfig(FlowBackpressure, 1)); err != nil {
		t.Fatal(err)
	}
	eventually(t, 2*time.Second, func() bool { return p.Stats().Rendered.Load() >= 3 }, "no frames rendered")
	p.Stop()

	if got := p.Stats().Dropped.Load(); got != 0 {
		t.Errorf("Dropped = %d after Stop under backpressure, want 0", got)
	}
}

// =============================================================================
// Tests: small types
// =============================================================================

func TestParseFlowPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    FlowPolicy
		wantErr bool
	}{
		{"drop", FlowDrop, false},
		{"", FlowDrop, false},
		{"BACKPRESSURE", FlowBackpressure, false},
		{"block", FlowBackpressure, false},
		{"oldest", FlowDrop, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFlowPolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFlowPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFlowPolicy(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{StateIdle.String(), "idle"},
		{StateRunning.String(), "running"},
		{StateStopped.String(), "stopped"},
		{State(99).String(), "unknown"},
		{FlowDrop.String(), "drop"},
		{FlowBackpressure.String(), "backpressure"},
		{FlowPolicy(7).String(), "unknown"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}

	if StateRunning.IsTerminal() || !StateStopped.IsTerminal() {
		t.Error("IsTerminal() wrong")
	}
}
