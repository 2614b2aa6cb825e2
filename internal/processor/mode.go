package processor

import (
	"fmt"
	"strings"

	"golang.org/x/image/draw"
)

// RenderMode selects how a resampled cell is turned into terminal output.
type RenderMode int

const (
	// ModeASCII maps each cell's luminance onto a character ramp.
	ModeASCII RenderMode = iota

	// ModeTrueColor paints each cell as a blank with a 24-bit background color.
	ModeTrueColor
)

// String returns the flag spelling of the mode.
func (m RenderMode) String() string {
	switch m {
	case ModeASCII:
		return "ascii"
	case ModeTrueColor:
		return "color"
	default:
		return "unknown"
	}
}

// ParseRenderMode converts a flag value into a RenderMode.
func ParseRenderMode(s string) (RenderMode, error) {
	switch strings.ToLower(s) {
	case "ascii", "gray", "grey":
		return ModeASCII, nil
	case "color", "colour", "truecolor":
		return ModeTrueColor, nil
	default:
		return ModeASCII, fmt.Errorf("unknown render mode %q (want ascii or color)", s)
	}
}

// Scaler names the resampling kernel used to shrink a frame to the grid.
type Scaler string

const (
	ScalerNearest    Scaler = "nearest"
	ScalerBilinear   Scaler = "bilinear"
	ScalerCatmullRom Scaler = "catmullrom"
)

// ParseScaler validates a scaler name.
func ParseScaler(s string) (Scaler, error) {
	switch sc := Scaler(strings.ToLower(s)); sc {
	case ScalerNearest, ScalerBilinear, ScalerCatmullRom:
		return sc, nil
	default:
		return ScalerBilinear, fmt.Errorf("unknown scaler %q (want nearest, bilinear or catmullrom)", s)
	}
}

// interpolator returns the x/image kernel for the scaler.
func (s Scaler) interpolator() draw.Interpolator {
	switch s {
	case ScalerNearest:
		return draw.NearestNeighbor
	case ScalerCatmullRom:
		return draw.CatmullRom
	default:
		return draw.ApproxBiLinear
	}
}
