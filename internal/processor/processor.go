// Package processor turns decoded frames into terminal-sized text grids.
//
// A Processor is built once per run for a fixed grid size and render mode.
// Process resamples the frame to one sample per terminal cell and then
// renders each sample either as a ramp character (ModeASCII) or as a
// colored blank (ModeTrueColor).
//
// Processor keeps scratch buffers between calls and is not safe for
// concurrent use; the pipeline runs exactly one process worker.
package processor

import (
	"bytes"
	"image"
	"strconv"

	"golang.org/x/image/draw"

	"github.com/randomizedcoder/go-ffmpeg-termvideo/internal/frame"
)

const (
	escBgPrefix = "\x1b[48;2;"
	escReset    = "\x1b[0m"
)

// Option configures a Processor.
type Option func(*Processor)

// WithRamp sets the character ramp used by ModeASCII.
// Callers should check the ramp with ValidateRamp first; an empty ramp is
// replaced by DefaultRamp.
func WithRamp(ramp string) Option {
	return func(p *Processor) {
		if ramp != "" {
			p.ramp = ramp
		}
	}
}

// WithScaler sets the resampling kernel.
func WithScaler(s Scaler) Option {
	return func(p *Processor) {
		p.scaler = s.interpolator()
	}
}

// Processor renders RawFrames into ProcessedFrames.
type Processor struct {
	dims   frame.Dimensions
	mode   RenderMode
	ramp   string
	scaler draw.Interpolator

	// Reused between calls.
	resized *image.RGBA
	buf     bytes.Buffer
	num     []byte
}

// New creates a Processor for the given grid size and mode.
func New(dims frame.Dimensions, mode RenderMode, opts ...Option) *Processor {
	p := &Processor{
		dims:   dims,
		mode:   mode,
		ramp:   DefaultRamp,
		scaler: draw.ApproxBiLinear,
		num:    make([]byte, 0, 3),
	}
	for _, opt := range opts {
		opt(p)
	}
	if dims.Valid() {
		p.resized = image.NewRGBA(image.Rect(0, 0, dims.Cols, dims.Rows))
	}
	return p
}

// Dimensions returns the target grid size.
func (p *Processor) Dimensions() frame.Dimensions {
	return p.dims
}

// Process renders f. The frame's ID and Timestamp are copied unchanged.
// An invalid frame, or a Processor with an empty grid, yields the zero
// ProcessedFrame.
func (p *Processor) Process(f frame.RawFrame) frame.ProcessedFrame {
	if !f.Valid() || p.resized == nil {
		return frame.ProcessedFrame{}
	}

	p.scaler.Scale(p.resized, p.resized.Bounds(), f.Image, f.Image.Bounds(), draw.Src, nil)

	p.buf.Reset()
	switch p.mode {
	case ModeTrueColor:
		p.buf.Grow(p.dims.Area()*len(escBgPrefix+"255;255;255m "+escReset) + p.dims.Rows)
		p.renderTrueColor()
	default:
		p.buf.Grow(p.dims.Area() + p.dims.Rows)
		p.renderASCII()
	}

	return frame.ProcessedFrame{
		ID:        f.ID,
		Timestamp: f.Timestamp,
		Grid:      p.buf.String(),
		Dims:      p.dims,
	}
}

func (p *Processor) renderASCII() {
	img := p.resized
	for y := 0; y < p.dims.Rows; y++ {
		if y > 0 {
			p.buf.WriteByte('\n')
		}
		row := img.Pix[y*img.Stride : y*img.Stride+p.dims.Cols*4]
		for x := 0; x < len(row); x += 4 {
			p.buf.WriteByte(RampChar(p.ramp, Luminance(row[x], row[x+1], row[x+2])))
		}
	}
}

func (p *Processor) renderTrueColor() {
	img := p.resized
	for y := 0; y < p.dims.Rows; y++ {
		if y > 0 {
			p.buf.WriteByte('\n')
		}
		row := img.Pix[y*img.Stride : y*img.Stride+p.dims.Cols*4]
		for x := 0; x < len(row); x += 4 {
			p.buf.WriteString(escBgPrefix)
			p.writeUint8(row[x])
			p.buf.WriteByte(';')
			p.writeUint8(row[x+1])
			p.buf.WriteByte(';')
			p.writeUint8(row[x+2])
			p.buf.WriteString("m ")
			p.buf.WriteString(escReset)
		}
	}
}

func (p *Processor) writeUint8(v uint8) {
	p.num = strconv.AppendUint(p.num[:0], uint64(v), 10)
	p.buf.Write(p.num)
}
