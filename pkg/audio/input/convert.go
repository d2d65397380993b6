// ABOUTME: Converts decoded int16 frames to the capture format
// ABOUTME: Mixes to mono, resamples and packs to the requested width
package input

import (
	"github.com/FruityPi/fruitypi-go/pkg/audio"
	"github.com/FruityPi/fruitypi-go/pkg/audio/resample"
)

// converter turns interleaved int16 frames at one rate and channel count into
// PCM bytes in the capture format. State carries across calls so chunk
// boundaries do not click.
type converter struct {
	srcChannels int
	dst         audio.Format
	resampler   *resample.Resampler
	mixed       []int16
	resampled   []int16
}

func newConverter(srcRate, srcChannels int, dst audio.Format) *converter {
	return &converter{
		srcChannels: srcChannels,
		dst:         dst,
		resampler:   resample.New(srcRate, dst.SampleRate),
	}
}

// mono averages the channels of frame i
func (c *converter) mono(src []int16, i int) int16 {
	if c.srcChannels == 1 {
		return src[i]
	}
	sum := 0
	for ch := 0; ch < c.srcChannels; ch++ {
		sum += int(src[i*c.srcChannels+ch])
	}
	return int16(sum / c.srcChannels)
}

// convert appends the converted form of src to dst and returns it
func (c *converter) convert(src []int16, dst []byte) []byte {
	frames := len(src) / c.srcChannels
	if frames == 0 {
		return dst
	}

	c.mixed = c.mixed[:0]
	for i := 0; i < frames; i++ {
		c.mixed = append(c.mixed, c.mono(src, i))
	}
	c.resampled = c.resampler.Resample(c.mixed, c.resampled[:0])

	width := c.dst.BytesPerSample()
	var packed [4]byte
	for _, sample := range c.resampled {
		audio.PutSample(packed[:], c.dst.BitsPerSample, sample)
		for ch := 0; ch < c.dst.Channels; ch++ {
			dst = append(dst, packed[:width]...)
		}
		// Pad containers wider than the channel set (BlockAlign > Channels*width)
		for pad := c.dst.Channels * width; pad < c.dst.BlockAlign; pad++ {
			dst = append(dst, 0)
		}
	}
	return dst
}

// framesFor returns how many source frames produce roughly n output frames
func (c *converter) framesFor(n int) int {
	return c.resampler.InputFrames(n)
}
