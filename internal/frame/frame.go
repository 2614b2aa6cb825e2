// Package frame defines the values that move through the playback pipeline.
package frame

import (
	"image"
	"time"
)

// ID identifies a decoded frame within a run. It increases by one per
// decoded frame and restarts at 0 when the source loops.
type ID uint64

// Dimensions is a terminal grid size in character cells.
type Dimensions struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// Area returns Cols * Rows.
func (d Dimensions) Area() int {
	return d.Cols * d.Rows
}

// Valid reports whether both sides are at least one cell.
func (d Dimensions) Valid() bool {
	return d.Cols > 0 && d.Rows > 0
}

// RawFrame is a decoded image on its way to the processor.
//
// Whichever stage holds a RawFrame owns its Image. A frame is handed to
// the next stage by queue send and must not be touched by the sender
// afterwards.
type RawFrame struct {
	ID ID

	// Timestamp is the wall-clock instant the frame was decoded. It is used
	// only to measure end-to-end latency, not as a presentation time.
	Timestamp time.Time

	Image *image.RGBA
}

// Valid is false for the zero RawFrame and for images with no area.
func (f RawFrame) Valid() bool {
	if f.Image == nil {
		return false
	}
	b := f.Image.Bounds()
	return b.Dx() > 0 && b.Dy() > 0
}

// ProcessedFrame is a rendered grid ready for display. It is never
// modified after the processor returns it.
type ProcessedFrame struct {
	ID        ID
	Timestamp time.Time

	// Grid holds Dims.Rows lines joined by '\n' with no trailing newline.
	Grid string
	Dims Dimensions
}

// Valid is false for the zero ProcessedFrame.
func (f ProcessedFrame) Valid() bool {
	return f.Grid != ""
}

// Latency returns the time elapsed between decode and now.
func (f ProcessedFrame) Latency(now time.Time) time.Duration {
	return now.Sub(f.Timestamp)
}
