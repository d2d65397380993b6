// ABOUTME: RGB color value produced by the loudness filter
// ABOUTME: Provides hex, brightness and HSV helpers for sinks and the TUI
package color

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is an immutable 24-bit RGB value
type Color struct {
	R uint8
	G uint8
	B uint8
}

// RGB builds a Color from its three channels
func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b}
}

// Parse reads a "#rrggbb" string
func Parse(hex string) (Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return Color{R: r, G: g, B: b}, nil
}

// MustParse is like Parse but panics on malformed input
func MustParse(hex string) Color {
	c, err := Parse(hex)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex returns the color as "#rrggbb"
func (c Color) Hex() string {
	return c.colorful().Hex()
}

// String implements fmt.Stringer
func (c Color) String() string {
	return c.Hex()
}

// Brightness is the mean of the three channels (0-255)
func (c Color) Brightness() int {
	return (int(c.R) + int(c.G) + int(c.B)) / 3
}

// HSV returns hue in degrees and saturation/value in [0,1]
func (c Color) HSV() (h, s, v float64) {
	return c.colorful().Hsv()
}

// Bytes returns the channels in R, G, B order
func (c Color) Bytes() [3]byte {
	return [3]byte{c.R, c.G, c.B}
}

func (c Color) colorful() colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255.0,
		G: float64(c.G) / 255.0,
		B: float64(c.B) / 255.0,
	}
}
