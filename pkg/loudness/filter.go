// ABOUTME: Stateful loudness-to-color transform
// ABOUTME: Keeps a ring of per-chunk magnitudes and maps the rolling mean onto a base color
package loudness

import (
	"fmt"

	"github.com/FruityPi/fruitypi-go/pkg/audio"
	"github.com/FruityPi/fruitypi-go/pkg/color"
)

const (
	// DefaultWindow is the number of chunks averaged by the filter
	DefaultWindow = 8

	// DefaultGain scales the rolling mean before it brightens the base color
	DefaultGain = 10

	// fullScale is the magnitude of a full-scale 16-bit sample
	fullScale = 32768

	sampleSize16 = 2
)

// DefaultBase is the hue the visualizer idles at
var DefaultBase = color.RGB(0xbd, 0x52, 0xf2)

// FormatError reports a chunk whose sample width the filter cannot read
type FormatError struct {
	SampleSize int // bytes per sample that was supplied
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unsupported sample size: %d bytes (only 16-bit samples are supported)", e.SampleSize)
}

// Config tunes the filter; zero values select the defaults
type Config struct {
	Window int
	Gain   int
	Base   *color.Color
}

// Filter is the rolling loudness filter. Not safe for concurrent use.
type Filter struct {
	window []uint32
	cursor int
	sum    uint64
	mean   uint32

	gain int
	base color.Color
	last color.Color
}

// New creates a filter, applying defaults for unset fields
func New(cfg Config) *Filter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Gain <= 0 {
		cfg.Gain = DefaultGain
	}
	base := DefaultBase
	if cfg.Base != nil {
		base = *cfg.Base
	}

	return &Filter{
		window: make([]uint32, cfg.Window),
		gain:   cfg.Gain,
		base:   base,
		last:   base,
	}
}

// Process consumes one chunk of little-endian PCM and returns the smoothed color.
// sampleSize other than 2 leaves the filter untouched and returns the previous
// color with a *FormatError.
func (f *Filter) Process(pcm []byte, sampleSize int) (color.Color, error) {
	if sampleSize != sampleSize16 {
		return f.last, &FormatError{SampleSize: sampleSize}
	}

	f.push(Magnitude(pcm))
	f.last = f.colorFor(f.mean)
	return f.last, nil
}

// Magnitude is the mean absolute value of the 16-bit samples in pcm.
// A trailing odd byte is ignored.
func Magnitude(pcm []byte) uint32 {
	n := len(pcm) / sampleSize16
	if n == 0 {
		return 0
	}

	var total uint64
	for i := 0; i < n; i++ {
		s := int32(audio.Int16At(pcm, i))
		if s < 0 {
			s = -s
		}
		total += uint64(s)
	}
	return uint32(total / uint64(n))
}

func (f *Filter) push(m uint32) {
	f.sum -= uint64(f.window[f.cursor])
	f.window[f.cursor] = m
	f.sum += uint64(m)
	f.cursor = (f.cursor + 1) % len(f.window)
	f.mean = uint32(f.sum / uint64(len(f.window)))
}

func (f *Filter) colorFor(mean uint32) color.Color {
	scaled := uint64(mean) * uint64(f.gain)
	return color.Color{
		R: brighten(f.base.R, scaled),
		G: brighten(f.base.G, scaled),
		B: brighten(f.base.B, scaled),
	}
}

// brighten adds c*scaled/fullScale to c, clamped to 255
func brighten(c uint8, scaled uint64) uint8 {
	v := uint64(c) + uint64(c)*scaled/fullScale
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// Mean is the current rolling mean magnitude
func (f *Filter) Mean() uint32 {
	return f.mean
}

// Last is the most recently produced color (the base color before any input)
func (f *Filter) Last() color.Color {
	return f.last
}

// Window is K, the number of chunks averaged
func (f *Filter) Window() int {
	return len(f.window)
}

// Base is the color produced for silence
func (f *Filter) Base() color.Color {
	return f.base
}

// Reset clears the magnitude history
func (f *Filter) Reset() {
	clear(f.window)
	f.cursor = 0
	f.sum = 0
	f.mean = 0
	f.last = f.base
}
