package processor

import (
	"errors"
	"fmt"
)

// DefaultRamp is ordered from the darkest (index 0) to the lightest cell.
const DefaultRamp = "$@B%8&WM#*oahkbdpqwmZO0QLCJUYXzcvunxrjft/\\|()1{}[]?-_+~<>i!lI;:,\"^`'. "

// ShortRamp is a compact ramp for small terminals or slow links.
const ShortRamp = " .:-=+*#%@"

// ResolveRamp maps the preset names "default" and "short" to their ramps
// and returns anything else unchanged.
func ResolveRamp(s string) string {
	switch s {
	case "default":
		return DefaultRamp
	case "short":
		return ShortRamp
	default:
		return s
	}
}

// Luminance converts an 8-bit RGB triplet to 8-bit luma using the
// Rec. 601 weights in 16-bit fixed point. 0,0,0 maps to 0 and
// 255,255,255 maps to 255.
func Luminance(r, g, b uint8) uint8 {
	y := (19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16
	return uint8(y)
}

// RampChar picks the ramp character for a luminance value using
// integer floor division: ramp[y*(len(ramp)-1)/255].
func RampChar(ramp string, y uint8) byte {
	return ramp[int(y)*(len(ramp)-1)/255]
}

// ValidateRamp checks that every ramp character occupies exactly one
// terminal cell.
func ValidateRamp(ramp string) error {
	if ramp == "" {
		return errors.New("ramp must not be empty")
	}
	for i := 0; i < len(ramp); i++ {
		if c := ramp[i]; c < 0x20 || c > 0x7e {
			return fmt.Errorf("ramp byte %d (0x%02x) is not printable ASCII", i, c)
		}
	}
	return nil
}
