package source

import (
	"image"
	"io"
	"math"
	"sync"
	"time"
)

// SyntheticConfig describes a generated test pattern.
type SyntheticConfig struct {
	Width  int
	Height int
	FPS    float64
	Frames int64 // frames per loop
}

// DefaultSyntheticConfig is a five second 320x180 clip at 30 fps.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{Width: 320, Height: 180, FPS: 30, Frames: 150}
}

// Synthetic generates a moving color pattern without any decoder. It
// serves demos, terminals without ffmpeg, and benchmarks of the render path.
type Synthetic struct {
	cfg SyntheticConfig

	mu     sync.Mutex
	pos    int64
	opened bool
}

// NewSynthetic creates a pattern source. Non-positive fields fall back to
// DefaultSyntheticConfig values.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	def := DefaultSyntheticConfig()
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.Height <= 0 {
		cfg.Height = def.Height
	}
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if cfg.Frames <= 0 {
		cfg.Frames = def.Frames
	}
	return &Synthetic{cfg: cfg}
}

// Open resets to the first frame. The path is ignored.
func (s *Synthetic) Open(string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = 0
	s.opened = true
	return nil
}

// NextFrame renders the frame at the current position, or io.EOF after
// the last frame of the loop.
func (s *Synthetic) NextFrame() (*image.RGBA, error) {
	s.mu.Lock()
	if !s.opened || s.pos >= s.cfg.Frames {
		s.mu.Unlock()
		return nil, io.EOF
	}
	n := s.pos
	s.pos++
	s.mu.Unlock()

	return s.render(n), nil
}

// render draws a diagonal hue gradient that scrolls with n and a bright
// vertical bar that sweeps across once per loop.
func (s *Synthetic) render(n int64) *image.RGBA {
	w, h := s.cfg.Width, s.cfg.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	phase := float64(n) / float64(s.cfg.Frames)
	barX := int(phase * float64(w))
	barW := max(w/16, 1)

	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			i := x * 4
			if x >= barX && x < barX+barW {
				row[i], row[i+1], row[i+2], row[i+3] = 255, 255, 255, 255
				continue
			}
			hue := math.Mod(float64(x+y)/float64(w+h)+phase, 1)
			// Fade toward black at the bottom so ASCII mode shows a ramp.
			v := 1 - 0.8*float64(y)/float64(h)
			r, g, b := hsvToRGB(hue, 0.9, v)
			row[i], row[i+1], row[i+2], row[i+3] = r, g, b, 255
		}
	}
	return img
}

func hsvToRGB(h, s, v float64) (uint8, uint8, uint8) {
	i := math.Floor(h * 6)
	f := h*6 - i
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return uint8(r * 255), uint8(g * 255), uint8(b * 255)
}

// Seek moves to frame index, clamped to the loop.
func (s *Synthetic) Seek(index int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = min(max(index, 0), s.cfg.Frames)
	return nil
}

// FrameInterval returns 1/FPS.
func (s *Synthetic) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / s.cfg.FPS)
}

// Width returns the pattern width.
func (s *Synthetic) Width() int { return s.cfg.Width }

// Height returns the pattern height.
func (s *Synthetic) Height() int { return s.cfg.Height }

// FrameCount returns the frames per loop.
func (s *Synthetic) FrameCount() int64 { return s.cfg.Frames }

// Close marks the source closed; NextFrame then returns io.EOF.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	return nil
}
