// Package source provides the video sources the player can decode from:
// an ffmpeg subprocess for real files and a synthetic pattern generator.
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/logging"
	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/process"
)

// DefaultFPS is assumed when the input reports no usable frame rate.
const DefaultFPS = 30.0

const pipeBufferSize = 1 << 20

// ErrInterrupted is returned by Seek once Interrupt has been called.
var ErrInterrupted = errors.New("source interrupted")

// FFmpegOption configures an FFmpegSource.
type FFmpegOption func(*FFmpegSource)

// WithFFmpeg sets the ffmpeg binary.
func WithFFmpeg(path string) FFmpegOption {
	return func(s *FFmpegSource) { s.ffmpegPath = path }
}

// WithFFprobe sets the ffprobe binary. Empty means next to ffmpeg or PATH.
func WithFFprobe(path string) FFmpegOption {
	return func(s *FFmpegSource) { s.ffprobePath = path }
}

// WithLogLevel sets ffmpeg's -loglevel.
func WithLogLevel(level string) FFmpegOption {
	return func(s *FFmpegSource) { s.logLevel = level }
}

// WithSourceLogger sets the logger for lifecycle and decoder stderr records.
func WithSourceLogger(l *slog.Logger, verbose bool) FFmpegOption {
	return func(s *FFmpegSource) {
		s.logger = l
		s.verbose = verbose
	}
}

// WithRunner replaces probing and the ffmpeg command with a fixed stream
// description and runner.
func WithRunner(r process.Runner, info process.VideoInfo) FFmpegOption {
	return func(s *FFmpegSource) {
		s.runner = r
		s.info = &info
	}
}

// FFmpegSource decodes a file by running ffmpeg and reading fixed-size RGBA
// frames from its stdout. Seeking restarts ffmpeg at the new offset.
//
// NextFrame and Seek are called from the decode goroutine only. Interrupt
// may be called from any goroutine to unblock a pending read.
type FFmpegSource struct {
	ffmpegPath  string
	ffprobePath string
	logLevel    string
	logger      *slog.Logger
	verbose     bool

	info      *process.VideoInfo
	runner    process.Runner
	stderr    *logging.StderrHandler
	frameSize int

	mu         sync.Mutex
	cmd        *exec.Cmd
	cancel     context.CancelFunc
	stdout     *bufio.Reader
	stderrDone chan struct{}
	readSince  int64 // frames read since the current process started
	closed     bool

	cancelMu      sync.Mutex
	cancelCurrent context.CancelFunc
	interrupted   bool
}

// NewFFmpegSource creates an unopened source.
func NewFFmpegSource(opts ...FFmpegOption) *FFmpegSource {
	s := &FFmpegSource{
		ffmpegPath: "ffmpeg",
		logLevel:   "error",
		logger:     logging.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Probe reads the stream description without starting a decode.
func (s *FFmpegSource) Probe(ctx context.Context, path string) (*process.VideoInfo, error) {
	if s.info != nil {
		return s.info, nil
	}
	probePath := s.ffprobePath
	if probePath == "" {
		probePath = process.FindFFprobe(s.ffmpegPath)
	}
	info, err := process.Probe(ctx, probePath, path)
	if err != nil {
		return nil, err
	}
	if info.FPS <= 0 {
		info.FPS = DefaultFPS
	}
	s.info = info
	return info, nil
}

// Open probes path and starts decoding from the first frame.
func (s *FFmpegSource) Open(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	info, err := s.Probe(ctx, path)
	if err != nil {
		return err
	}
	if info.FPS <= 0 {
		info.FPS = DefaultFPS
	}

	if s.runner == nil {
		cfg := process.DefaultDecodeConfig(path)
		cfg.BinaryPath = s.ffmpegPath
		cfg.Width, cfg.Height = info.Width, info.Height
		cfg.FPS = info.FPS
		cfg.LogLevel = s.logLevel
		s.runner = process.NewFFmpegDecoder(cfg)
	}
	s.frameSize = info.Width * info.Height * 4
	s.stderr = logging.NewStderrHandler(path, s.logger, s.verbose)

	s.cancelMu.Lock()
	s.interrupted = false
	s.cancelMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
	return s.startLocked(0)
}

// startLocked launches the decoder at startFrame. Caller holds mu.
// After Interrupt no decoder is started, and one that raced with Interrupt
// is killed as soon as it is installed.
func (s *FFmpegSource) startLocked(startFrame int64) error {
	if s.isInterrupted() {
		return ErrInterrupted
	}
	ctx, cancel := context.WithCancel(context.Background())
	cmd, err := s.runner.BuildCommand(ctx, startFrame)
	if err != nil {
		cancel()
		return err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", s.runner.Name(), err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stderr.HandleReader(stderr)
	}()

	s.cmd = cmd
	s.cancel = cancel
	s.cancelMu.Lock()
	s.cancelCurrent = cancel
	if s.interrupted {
		cancel()
	}
	s.cancelMu.Unlock()
	s.stdout = bufio.NewReaderSize(stdout, pipeBufferSize)
	s.stderrDone = done
	s.readSince = 0

	s.logger.Debug("decoder_started",
		"decoder", s.runner.Name(),
		"pid", cmd.Process.Pid,
		"start_frame", startFrame,
	)
	return nil
}

// stopLocked kills the decoder if running and reaps it. It returns the
// process exit error for a decoder that ended on its own. Caller holds mu.
func (s *FFmpegSource) stopLocked(kill bool) error {
	if s.cmd == nil {
		return nil
	}
	if kill {
		s.cancel()
	}
	<-s.stderrDone
	err := s.cmd.Wait()
	s.cancel()

	s.cmd = nil
	s.stdout = nil
	if kill {
		return nil
	}
	return err
}

// NextFrame reads one frame. It returns io.EOF when the decoder finishes.
// A decoder that fails before producing any frame returns its exit error
// and last stderr line instead.
func (s *FFmpegSource) NextFrame() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, io.EOF
	}
	if s.cmd == nil {
		return nil, io.EOF
	}

	img := image.NewRGBA(image.Rect(0, 0, s.info.Width, s.info.Height))
	_, err := io.ReadFull(s.stdout, img.Pix[:s.frameSize])
	if err == nil {
		s.readSince++
		return img, nil
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			s.logger.Debug("decoder_partial_frame")
		}
		exitErr := s.stopLocked(false)
		if exitErr != nil && s.readSince == 0 {
			if line := s.stderr.LastError(); line != "" {
				return nil, fmt.Errorf("%s exited: %w: %s", s.runner.Name(), exitErr, line)
			}
			return nil, fmt.Errorf("%s exited: %w", s.runner.Name(), exitErr)
		}
		return nil, io.EOF
	}
	return nil, fmt.Errorf("read frame: %w", err)
}

// Seek restarts the decoder at frame index.
func (s *FFmpegSource) Seek(index int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("source closed")
	}
	_ = s.stopLocked(true)
	return s.startLocked(index)
}

// Interrupt kills the running decoder without waiting for it, which makes
// a NextFrame blocked on the pipe return. It also stops any later Seek from
// starting a new decoder until the next Open.
func (s *FFmpegSource) Interrupt() {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	s.interrupted = true
	if s.cancelCurrent != nil {
		s.cancelCurrent()
	}
}

func (s *FFmpegSource) isInterrupted() bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	return s.interrupted
}

// Close stops the decoder. Further reads return io.EOF.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return s.stopLocked(true)
}

// FrameInterval returns the nominal time between frames.
func (s *FFmpegSource) FrameInterval() time.Duration {
	if s.info == nil {
		return 0
	}
	return s.info.FrameInterval()
}

// Width returns the native frame width.
func (s *FFmpegSource) Width() int {
	if s.info == nil {
		return 0
	}
	return s.info.Width
}

// Height returns the native frame height.
func (s *FFmpegSource) Height() int {
	if s.info == nil {
		return 0
	}
	return s.info.Height
}

// FrameCount returns the total frame count, or 0 if unknown.
func (s *FFmpegSource) FrameCount() int64 {
	if s.info == nil {
		return 0
	}
	return s.info.FrameCount
}

// Info returns the probed stream description, nil before Probe or Open.
func (s *FFmpegSource) Info() *process.VideoInfo {
	return s.info
}

// Stderr returns the decoder stderr handler, nil before Open.
func (s *FFmpegSource) Stderr() *logging.StderrHandler {
	return s.stderr
}
