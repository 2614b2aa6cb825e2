package process

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DecodeConfig holds configuration for an ffmpeg rawvideo decode.
type DecodeConfig struct {
	// BinaryPath is the path to the ffmpeg binary.
	BinaryPath string

	// Input is the video file (or any URL ffmpeg accepts).
	Input string

	// Width and Height are the output frame size, usually the native size
	// reported by ffprobe.
	Width  int
	Height int

	// FPS converts a start frame into a seek offset.
	FPS float64

	// LogLevel is ffmpeg's -loglevel (quiet, error, warning, info).
	LogLevel string

	// Realtime adds -re so ffmpeg itself reads at native rate. Off by
	// default; the pipeline paces frames.
	Realtime bool
}

// DefaultDecodeConfig returns a DecodeConfig with sensible defaults.
func DefaultDecodeConfig(input string) *DecodeConfig {
	return &DecodeConfig{
		BinaryPath: "ffmpeg",
		Input:      input,
		FPS:        30,
		LogLevel:   "error",
	}
}

// FFmpegDecoder implements Runner with ffmpeg writing RGBA to a pipe.
type FFmpegDecoder struct {
	config *DecodeConfig
}

// NewFFmpegDecoder creates a decoder for cfg.
func NewFFmpegDecoder(cfg *DecodeConfig) *FFmpegDecoder {
	return &FFmpegDecoder{config: cfg}
}

// Name returns "ffmpeg".
func (d *FFmpegDecoder) Name() string {
	return "ffmpeg"
}

// BuildCommand creates the decode command starting at startFrame.
func (d *FFmpegDecoder) BuildCommand(ctx context.Context, startFrame int64) (*exec.Cmd, error) {
	if d.config.Input == "" {
		return nil, fmt.Errorf("ffmpeg: no input")
	}
	if d.config.Width <= 0 || d.config.Height <= 0 {
		return nil, fmt.Errorf("ffmpeg: invalid frame size %dx%d", d.config.Width, d.config.Height)
	}
	return exec.CommandContext(ctx, d.config.BinaryPath, d.buildArgs(startFrame)...), nil
}

// buildArgs constructs the ffmpeg command-line arguments.
func (d *FFmpegDecoder) buildArgs(startFrame int64) []string {
	logLevel := d.config.LogLevel
	if logLevel == "" {
		logLevel = "error"
	}

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", logLevel,
	}

	if d.config.Realtime {
		args = append(args, "-re")
	}

	// Input seeking (before -i) is fast and keyframe-accurate, which is
	// enough for rewinding.
	if off := d.seekOffset(startFrame); off != "" {
		args = append(args, "-ss", off)
	}

	args = append(args, "-i", d.config.Input)

	// First video stream only; no audio or subtitles.
	args = append(args, "-map", "0:v:0", "-an", "-sn")

	// Fixed-size RGBA so every frame is exactly FrameSize bytes.
	args = append(args,
		"-vf", fmt.Sprintf("scale=%d:%d", d.config.Width, d.config.Height),
		"-pix_fmt", "rgba",
		"-f", "rawvideo",
		"pipe:1",
	)

	return args
}

// seekOffset converts a frame index into an -ss value in seconds.
// Frame 0 needs no seek.
func (d *FFmpegDecoder) seekOffset(startFrame int64) string {
	if startFrame <= 0 || d.config.FPS <= 0 {
		return ""
	}
	return strconv.FormatFloat(float64(startFrame)/d.config.FPS, 'f', 3, 64)
}

// FrameSize returns the byte length of one RGBA frame.
func (d *FFmpegDecoder) FrameSize() int {
	return d.config.Width * d.config.Height * 4
}

// Config returns the decode configuration.
func (d *FFmpegDecoder) Config() *DecodeConfig {
	return d.config
}

// CommandString returns the command that would be executed, for --print-cmd.
func (d *FFmpegDecoder) CommandString() string {
	return d.config.BinaryPath + " " + strings.Join(d.buildArgs(0), " ")
}
