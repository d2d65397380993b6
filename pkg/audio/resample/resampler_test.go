// ABOUTME: Tests for the streaming resampler
// ABOUTME: Tests chunk continuity, rate ratios and reset
package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSameRateLagsOneSample(t *testing.T) {
	r := New(8000, 8000)

	first := r.Resample([]int16{100, 200, 300}, nil)
	second := r.Resample([]int16{400, 500}, nil)

	assert.Equal(t, []int16{0, 100, 200}, first)
	assert.Equal(t, []int16{300, 400}, second)
}

func TestUpsampleInterpolates(t *testing.T) {
	r := New(8000, 16000)

	out := r.Resample([]int16{1000, 2000}, nil)
	assert.Equal(t, []int16{0, 500, 1000, 1500}, out)
}

func TestRatios(t *testing.T) {
	tests := []struct {
		name    string
		in, out int
		frames  int
		want    int
	}{
		{"downsample by two", 16000, 8000, 800, 400},
		{"upsample by two", 8000, 16000, 400, 800},
		{"44.1k to 48k", 44100, 48000, 4410, 4800},
		{"48k to 44.1k", 48000, 44100, 4800, 4410},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.in, tt.out)
			total := 0
			// feed in uneven chunks
			for fed := 0; fed < tt.frames; {
				n := 97
				if fed+n > tt.frames {
					n = tt.frames - fed
				}
				total += len(r.Resample(make([]int16, n), nil))
				fed += n
			}
			assert.InDelta(t, tt.want, total, 1)
		})
	}
}

func TestInputFrames(t *testing.T) {
	assert.Equal(t, 441, New(44100, 48000).InputFrames(480))
	assert.Equal(t, 1, New(8000, 48000).InputFrames(1))
}

func TestEmptyInput(t *testing.T) {
	r := New(8000, 8000)
	assert.Empty(t, r.Resample(nil, nil))
}

func TestReset(t *testing.T) {
	r := New(8000, 8000)
	r.Resample([]int16{100, 200}, nil)
	r.Reset()

	assert.Equal(t, []int16{0, 7}, r.Resample([]int16{7, 9}, nil))
}
