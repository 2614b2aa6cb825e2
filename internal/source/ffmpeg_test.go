package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/logging"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/process"
)

// =============================================================================
// Helper process standing in for ffmpeg
// =============================================================================

// helperRunner re-executes the test binary as a fake decoder. Every byte
// of frame n is n, so tests can tell which frame they got.
type helperRunner struct {
	mode   string // "ok", "fail" or "hang"
	frames int
	w, h   int
	starts []int64
}

func (r *helperRunner) Name() string { return "helper" }

func (r *helperRunner) BuildCommand(ctx context.Context, startFrame int64) (*exec.Cmd, error) {
	r.starts = append(r.starts, startFrame)
	cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess", "--")
	cmd.Env = append(os.Environ(),
		"GO_WANT_HELPER_PROCESS=1",
		"HELPER_MODE="+r.mode,
		"HELPER_FRAMES="+strconv.Itoa(r.frames),
		"HELPER_SIZE="+strconv.Itoa(r.w*r.h*4),
		"HELPER_START="+strconv.FormatInt(startFrame, 10),
	)
	return cmd, nil
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	frames, _ := strconv.Atoi(os.Getenv("HELPER_FRAMES"))
	size, _ := strconv.Atoi(os.Getenv("HELPER_SIZE"))
	start, _ := strconv.Atoi(os.Getenv("HELPER_START"))

	switch os.Getenv("HELPER_MODE") {
	case "fail":
		fmt.Fprintln(os.Stderr, "clip.mp4: No such file or directory")
		os.Exit(1)
	case "hang":
		os.Stdout.Write(make([]byte, size))
		time.Sleep(time.Minute)
		os.Exit(0)
	}

	buf := make([]byte, size)
	for n := start; n < frames; n++ {
		for i := range buf {
			buf[i] = byte(n)
		}
		if _, err := os.Stdout.Write(buf); err != nil {
			os.Exit(2)
		}
	}
	os.Exit(0)
}

func newHelperSource(mode string, frames int) (*FFmpegSource, *helperRunner) {
	r := &helperRunner{mode: mode, frames: frames, w: 4, h: 2}
	info := process.VideoInfo{Width: r.w, Height: r.h, FPS: 25, FrameCount: int64(frames)}
	return NewFFmpegSource(WithRunner(r, info)), r
}

// =============================================================================
// FFmpegSource
// =============================================================================

func TestFFmpegSource_ReadsAllFramesThenEOF(t *testing.T) {
	src, _ := newHelperSource("ok", 3)
	if err := src.Open("clip.mp4"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	for n := 0; n < 3; n++ {
		img, err := src.NextFrame()
		if err != nil {
			t.Fatalf("NextFrame() #%d error = %v", n, err)
		}
		if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 2 {
			t.Fatalf("frame bounds = %v", img.Bounds())
		}
		if img.Pix[0] != byte(n) || img.Pix[len(img.Pix)-1] != byte(n) {
			t.Errorf("frame %d has pixel %d", n, img.Pix[0])
		}
	}

	if _, err := src.NextFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("NextFrame() after last frame error = %v, want io.EOF", err)
	}
	if _, err := src.NextFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("NextFrame() after EOF error = %v, want io.EOF", err)
	}
}

func TestFFmpegSource_SeekRestartsDecoder(t *testing.T) {
	src, r := newHelperSource("ok", 5)
	if err := src.Open("clip.mp4"); err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if _, err := src.NextFrame(); err != nil {
		t.Fatal(err)
	}
	if err := src.Seek(3); err != nil {
		t.Fatalf("Seek(3) error = %v", err)
	}
	img, err := src.NextFrame()
	if err != nil {
		t.Fatal(err)
	}
	if img.Pix[0] != 3 {
		t.Errorf("frame after Seek(3) = %d, want 3", img.Pix[0])
	}

	// Rewind after reaching the end.
	for {
		if _, err := src.NextFrame(); err != nil {
			break
		}
	}
	if err := src.Seek(0); err != nil {
		t.Fatalf("Seek(0) error = %v", err)
	}
	img, err = src.NextFrame()
	if err != nil || img.Pix[0] != 0 {
		t.Errorf("frame after rewind = %v, %v", img, err)
	}

	want := []int64{0, 3, 0}
	if fmt.Sprint(r.starts) != fmt.Sprint(want) {
		t.Errorf("decoder starts = %v, want %v", r.starts, want)
	}
}

func TestFFmpegSource_FailureBeforeFirstFrame(t *testing.T) {
	src, _ := newHelperSource("fail", 3)
	logger := logging.NewDiscardLogger()
	WithSourceLogger(logger, false)(src)

	if err := src.Open("clip.mp4"); err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	_, err := src.NextFrame()
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("NextFrame() error = %v, want exit error", err)
	}
	if !strings.Contains(err.Error(), "No such file") {
		t.Errorf("error %q does not carry the decoder message", err)
	}
	if len(src.Stderr().CountErrors()) == 0 {
		t.Error("stderr handler did not classify the failure")
	}
}

func TestFFmpegSource_InterruptUnblocksRead(t *testing.T) {
	src, _ := newHelperSource("hang", 1)
	if err := src.Open("clip.mp4"); err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if _, err := src.NextFrame(); err != nil {
		t.Fatalf("first NextFrame() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := src.NextFrame()
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	src.Interrupt()

	select {
	case err := <-errCh:
		if !errors.Is(err, io.EOF) {
			t.Errorf("interrupted NextFrame() error = %v, want io.EOF", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("NextFrame() still blocked after Interrupt")
	}
}

func TestFFmpegSource_InterruptBeforeSeek(t *testing.T) {
	src, r := newHelperSource("hang", 1)
	if err := src.Open("clip.mp4"); err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if _, err := src.NextFrame(); err != nil {
		t.Fatalf("first NextFrame() error = %v", err)
	}

	src.Interrupt()
	if err := src.Seek(0); !errors.Is(err, ErrInterrupted) {
		t.Errorf("Seek() after Interrupt error = %v, want ErrInterrupted", err)
	}
	if len(r.starts) != 1 {
		t.Errorf("decoder started %d times, want 1", len(r.starts))
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := src.NextFrame()
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, io.EOF) {
			t.Errorf("NextFrame() after interrupted Seek error = %v, want io.EOF", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("NextFrame() blocked on a decoder started after Interrupt")
	}
}

func TestFFmpegSource_CloseStopsReads(t *testing.T) {
	src, _ := newHelperSource("ok", 10)
	if err := src.Open("clip.mp4"); err != nil {
		t.Fatal(err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := src.NextFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("NextFrame() after Close error = %v, want io.EOF", err)
	}
	if err := src.Seek(0); err == nil {
		t.Error("Seek() after Close should fail")
	}
}

func TestFFmpegSource_Metadata(t *testing.T) {
	src := NewFFmpegSource()
	if src.Width() != 0 || src.FrameInterval() != 0 || src.Info() != nil {
		t.Error("unopened source should report zero metadata")
	}

	src, _ = newHelperSource("ok", 7)
	if src.Width() != 4 || src.Height() != 2 || src.FrameCount() != 7 {
		t.Errorf("metadata = %dx%d/%d", src.Width(), src.Height(), src.FrameCount())
	}
	if got := src.FrameInterval(); got != 40*time.Millisecond {
		t.Errorf("FrameInterval() = %v, want 40ms", got)
	}
}

func TestFFmpegSource_OpenProbeFailure(t *testing.T) {
	src := NewFFmpegSource(WithFFprobe("/nonexistent/ffprobe"))
	if err := src.Open("clip.mp4"); err == nil {
		t.Error("Open() with a missing ffprobe should fail")
	}
}
