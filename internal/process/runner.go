// Package process builds and probes the external ffmpeg tools that decode
// video for the player.
package process

import (
	"context"
	"os/exec"
)

// Runner creates decoder commands. FFmpegDecoder is the real one; tests
// substitute commands that write canned frames.
type Runner interface {
	// BuildCommand returns a command, not yet started, that writes raw
	// RGBA frames to stdout beginning at startFrame.
	BuildCommand(ctx context.Context, startFrame int64) (*exec.Cmd, error)

	// Name returns a human-readable name for this decoder.
	Name() string
}
