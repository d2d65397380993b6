// ABOUTME: Tests for the Color value type
// ABOUTME: Covers parsing, hex formatting and brightness ordering
package color

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndHex(t *testing.T) {
	c, err := Parse("#bd52f2")
	require.NoError(t, err)

	assert.Equal(t, RGB(0xbd, 0x52, 0xf2), c)
	assert.Equal(t, "#bd52f2", c.Hex())
	assert.Equal(t, "#bd52f2", c.String())
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("purple")
	assert.Error(t, err)
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("#zzzzzz") })
}

func TestBrightness(t *testing.T) {
	tests := []struct {
		name  string
		color Color
		want  int
	}{
		{"black", RGB(0, 0, 0), 0},
		{"white", RGB(255, 255, 255), 255},
		{"base", RGB(0xbd, 0x52, 0xf2), (0xbd + 0x52 + 0xf2) / 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.color.Brightness())
		})
	}
}

func TestHSVOfPrimary(t *testing.T) {
	h, s, v := RGB(255, 0, 0).HSV()
	assert.InDelta(t, 0.0, h, 0.001)
	assert.InDelta(t, 1.0, s, 0.001)
	assert.InDelta(t, 1.0, v, 0.001)
}

func TestBytesOrder(t *testing.T) {
	assert.Equal(t, [3]byte{1, 2, 3}, RGB(1, 2, 3).Bytes())
}
