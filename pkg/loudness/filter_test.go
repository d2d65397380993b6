// ABOUTME: Tests for the rolling loudness filter
// ABOUTME: Tests convergence, smoothing, gain mapping and format rejection
package loudness

import (
	"encoding/binary"
	"testing"

	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunk builds n samples alternating between +v and -v
func chunk(v int16, n int) []byte {
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := v
		if i%2 == 1 {
			s = -v
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

func TestMagnitude(t *testing.T) {
	tests := []struct {
		name     string
		pcm      []byte
		expected uint32
	}{
		{"empty", nil, 0},
		{"single byte", []byte{0x7F}, 0},
		{"silence", chunk(0, 64), 0},
		{"alternating", chunk(1000, 64), 1000},
		{"full scale negative", []byte{0x00, 0x80}, 32768},
		{"odd trailing byte ignored", append(chunk(200, 4), 0xFF), 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Magnitude(tt.pcm))
		})
	}
}

func TestSilenceConvergesToBase(t *testing.T) {
	f := New(Config{})
	assert.Equal(t, DefaultBase, f.Last())

	var c color.Color
	for i := 0; i < DefaultWindow; i++ {
		var err error
		c, err = f.Process(chunk(0, 367), 2)
		require.NoError(t, err)
	}

	assert.Equal(t, DefaultBase, c)
	assert.Equal(t, uint32(0), f.Mean())
}

func TestConstantInputIsStable(t *testing.T) {
	f := New(Config{})
	const level = 500

	var means []uint32
	for i := 0; i < DefaultWindow; i++ {
		_, err := f.Process(chunk(level, 100), 2)
		require.NoError(t, err)
		means = append(means, f.Mean())
	}

	// Climbs monotonically while the window fills, then sits at the input level
	for i := 1; i < len(means); i++ {
		assert.GreaterOrEqual(t, means[i], means[i-1])
	}
	assert.Equal(t, uint32(level), f.Mean())

	steady := f.Last()
	for i := 0; i < 3*DefaultWindow; i++ {
		c, err := f.Process(chunk(level, 100), 2)
		require.NoError(t, err)
		assert.Equal(t, steady, c)
		assert.Equal(t, uint32(level), f.Mean())
	}
}

func TestBurstDecaysGradually(t *testing.T) {
	f := New(Config{})

	burst, err := f.Process(chunk(8000, 100), 2)
	require.NoError(t, err)
	assert.Greater(t, burst.Brightness(), DefaultBase.Brightness())

	// The burst stays in the window for K-1 more chunks
	for i := 0; i < DefaultWindow-1; i++ {
		c, err := f.Process(chunk(0, 100), 2)
		require.NoError(t, err)
		assert.Equal(t, uint32(8000/DefaultWindow), f.Mean(), "chunk %d", i)
		assert.Greater(t, c.Brightness(), DefaultBase.Brightness(), "chunk %d", i)
		assert.LessOrEqual(t, c.Brightness(), burst.Brightness())
	}

	// The K-th silent chunk pushes it out
	c, err := f.Process(chunk(0, 100), 2)
	require.NoError(t, err)
	assert.Equal(t, DefaultBase, c)
}

func TestBrightnessMonotonicInLoudness(t *testing.T) {
	prev := -1
	for _, level := range []int16{0, 10, 100, 500, 1000, 4000, 16000, 32767} {
		f := New(Config{Window: 1})
		c, err := f.Process(chunk(level, 32), 2)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, c.Brightness(), prev, "level %d", level)
		prev = c.Brightness()
	}
}

func TestGainMapping(t *testing.T) {
	base := color.RGB(100, 50, 200)
	f := New(Config{Window: 1, Gain: 10, Base: &base})

	// mean 3276 * gain 10 = 32760 -> each channel roughly doubles (clamped)
	c, err := f.Process(chunk(3276, 10), 2)
	require.NoError(t, err)

	assert.Equal(t, uint8(100+100*32760/32768), c.R)
	assert.Equal(t, uint8(50+50*32760/32768), c.G)
	assert.Equal(t, uint8(255), c.B)
}

func TestFullScaleClamps(t *testing.T) {
	f := New(Config{Window: 1})
	c, err := f.Process(chunk(32767, 10), 2)
	require.NoError(t, err)
	assert.Equal(t, color.RGB(255, 255, 255), c)
}

func TestUnsupportedSampleSizeKeepsState(t *testing.T) {
	f := New(Config{})

	before, err := f.Process(chunk(2000, 50), 2)
	require.NoError(t, err)
	mean := f.Mean()

	for _, size := range []int{0, 1, 3, 4} {
		c, err := f.Process(chunk(30000, 50), size)

		var fe *FormatError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, size, fe.SampleSize)
		assert.Equal(t, before, c)
		assert.Equal(t, mean, f.Mean())
	}

	// The next valid chunk continues from the same window
	_, err = f.Process(chunk(2000, 50), 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(2*2000/DefaultWindow), f.Mean())
}

func TestCustomWindow(t *testing.T) {
	f := New(Config{Window: 2})
	assert.Equal(t, 2, f.Window())

	_, _ = f.Process(chunk(100, 10), 2)
	assert.Equal(t, uint32(50), f.Mean())
	_, _ = f.Process(chunk(100, 10), 2)
	assert.Equal(t, uint32(100), f.Mean())
}

func TestReset(t *testing.T) {
	f := New(Config{})
	_, _ = f.Process(chunk(9000, 10), 2)
	require.NotZero(t, f.Mean())

	f.Reset()
	assert.Zero(t, f.Mean())
	assert.Equal(t, f.Base(), f.Last())

	c, err := f.Process(chunk(0, 10), 2)
	require.NoError(t, err)
	assert.Equal(t, DefaultBase, c)
}

func TestFormatErrorMessage(t *testing.T) {
	err := &FormatError{SampleSize: 3}
	assert.Contains(t, err.Error(), "3 bytes")
}
