// ABOUTME: Audio fundamentals package providing PCM format types
// ABOUTME: Defines Format, capture buffer sizing and sample packing helpers
// Package audio provides the PCM format description shared by capture
// drivers, the buffer ring and the loudness filter.
//
// Only 16-bit samples are understood by the loudness filter; other widths
// are accepted by Format.Validate so devices can still be opened, and
// Format.Supported reports the mismatch so callers can warn about it.
//
// Example:
//
//	format := audio.Format{
//	    SampleRate:    48000,
//	    BitsPerSample: 16,
//	    Channels:      2,
//	}.Normalize()
//
//	// 4 bytes per frame * (48000 / 120) frames = 1600 bytes
//	n := format.BufferLen(audio.DefaultBuffersPerSecond)
package audio
