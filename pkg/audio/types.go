// ABOUTME: Audio format definitions for PCM capture
// ABOUTME: Defines Format, capture buffer sizing and sample packing helpers
package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// SupportedBitsPerSample is the only sample width the loudness filter reads
	SupportedBitsPerSample = 16

	// DefaultBuffersPerSecond sizes each capture buffer to ~1/120 s of audio
	DefaultBuffersPerSecond = 120

	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes a PCM capture stream
type Format struct {
	SampleRate    int // Hz
	BitsPerSample int
	Channels      int
	BlockAlign    int // bytes per frame, derived when zero
}

// DefaultFormat is 44.1kHz 16-bit mono, the cheapest input for a one-dimensional visualizer
func DefaultFormat() Format {
	return Format{
		SampleRate:    44100,
		BitsPerSample: 16,
		Channels:      1,
	}.Normalize()
}

// Normalize fills in BlockAlign from channels and sample width
func (f Format) Normalize() Format {
	if f.BlockAlign == 0 {
		f.BlockAlign = f.Channels * f.BytesPerSample()
	}
	return f
}

// Validate rejects formats no device could produce
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	if f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0 {
		return fmt.Errorf("invalid bits per sample: %d", f.BitsPerSample)
	}
	if f.BlockAlign < f.Channels*f.BytesPerSample() {
		return fmt.Errorf("block align %d too small for %d channels of %d-bit samples",
			f.BlockAlign, f.Channels, f.BitsPerSample)
	}
	return nil
}

// Supported reports whether the loudness filter can read this sample width
func (f Format) Supported() bool {
	return f.BitsPerSample == SupportedBitsPerSample
}

// BytesPerSample is the width of one sample of one channel
func (f Format) BytesPerSample() int {
	return f.BitsPerSample / 8
}

// BufferLen returns the byte size of a buffer holding 1/buffersPerSecond of audio
func (f Format) BufferLen(buffersPerSecond int) int {
	if buffersPerSecond <= 0 {
		buffersPerSecond = DefaultBuffersPerSecond
	}
	return f.BlockAlign * (f.SampleRate / buffersPerSecond)
}

// Duration returns how much audio n bytes of this format hold
func (f Format) Duration(n int) time.Duration {
	if f.BlockAlign == 0 || f.SampleRate == 0 {
		return 0
	}
	frames := n / f.BlockAlign
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// String renders e.g. "44100Hz/16-bit/mono"
func (f Format) String() string {
	return fmt.Sprintf("%dHz/%d-bit/%s", f.SampleRate, f.BitsPerSample, ChannelName(f.Channels))
}

// ChannelName names a channel count for logs and the TUI
func ChannelName(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}

// Int16At decodes the little-endian 16-bit sample at sample index i
func Int16At(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}

// PutSample packs a 16-bit sample into dst at the given width (little-endian).
// Wider containers keep the value left-justified, 8-bit is unsigned.
func PutSample(dst []byte, bitsPerSample int, sample int16) {
	switch bitsPerSample {
	case 8:
		dst[0] = byte(int(sample>>8) + 128)
	case 16:
		binary.LittleEndian.PutUint16(dst, uint16(sample))
	case 24:
		b := SampleTo24Bit(SampleFromInt16(sample))
		copy(dst, b[:])
	case 32:
		binary.LittleEndian.PutUint32(dst, uint32(int32(sample)<<16))
	}
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}
