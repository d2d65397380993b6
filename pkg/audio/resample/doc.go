// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts mono audio between sample rates
// Package resample provides streaming sample rate conversion.
//
// Uses linear interpolation for converting between sample rates and
// handles both upsampling and downsampling. State carries across calls,
// so audio can be fed in arbitrary chunk sizes.
//
// Example:
//
//	r := resample.New(44100, 48000)
//	out = r.Resample(chunk, out[:0])
package resample
