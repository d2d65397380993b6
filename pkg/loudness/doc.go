// ABOUTME: Rolling loudness filter turning PCM chunks into a smoothed color
// ABOUTME: Mean absolute sample value, K-wide moving average, gain, base hue
// Package loudness converts chunks of 16-bit PCM into a single color.
//
// Each chunk's mean absolute sample value is pushed into a ring of the last
// K measurements. The rolling mean of that ring, scaled by a gain, brightens
// a base color channel by channel. A larger window gives a slower, steadier
// color; silence yields the base color itself.
//
// Example:
//
//	f := loudness.New(loudness.Config{})
//	c, err := f.Process(pcm, 2)
package loudness
