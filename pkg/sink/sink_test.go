// ABOUTME: Tests for the UDP sink and the fan-out and counting wrappers
// ABOUTME: Uses a loopback UDP socket as the listener
package sink

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/FruityPi/fruitypi-go/pkg/protocol"
	"github.com/FruityPi/fruitypi-go/pkg/visualizer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	colors  []color.Color
	dropped uint64
	closed  bool
	err     error
}

func (r *recordingSink) Send(c color.Color) { r.colors = append(r.colors, c) }
func (r *recordingSink) Dropped() uint64    { return r.dropped }
func (r *recordingSink) Close() error {
	r.closed = true
	return r.err
}

func TestUDPSendsDatagrams(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	udp, err := DialUDP(listener.LocalAddr().String(), zerolog.Nop())
	require.NoError(t, err)
	defer udp.Close()

	colors := []color.Color{color.RGB(1, 2, 3), color.RGB(0xbd, 0x52, 0xf2)}
	for _, c := range colors {
		udp.Send(c)
	}

	buf := make([]byte, 64)
	for _, want := range colors {
		require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := listener.ReadFrom(buf)
		require.NoError(t, err)
		require.Equal(t, protocol.ColorDatagramSize, n)

		got, err := protocol.UnmarshalColor(buf[:n])
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	assert.Equal(t, uint64(2), udp.Sent())
	assert.Equal(t, uint64(0), udp.Dropped())
}

func TestUDPDialRejectsBadAddress(t *testing.T) {
	_, err := DialUDP("not-an-address", zerolog.Nop())
	assert.Error(t, err)
}

func TestUDPCountsFailedWrites(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	udp, err := DialUDP(listener.LocalAddr().String(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, udp.Close())

	udp.Send(color.RGB(9, 9, 9))
	assert.Equal(t, uint64(1), udp.Dropped())
}

func TestMultiFansOut(t *testing.T) {
	a := &recordingSink{dropped: 2}
	b := &recordingSink{dropped: 3, err: errors.New("boom")}
	m := Multi{a, b, visualizer.SinkFunc(func(color.Color) {})}

	m.Send(color.RGB(1, 1, 1))
	m.Send(color.RGB(2, 2, 2))

	assert.Equal(t, []color.Color{color.RGB(1, 1, 1), color.RGB(2, 2, 2)}, a.colors)
	assert.Equal(t, a.colors, b.colors)
	assert.Equal(t, uint64(5), m.Dropped())

	err := m.Close()
	assert.ErrorContains(t, err, "boom")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestCountingRecordsTraffic(t *testing.T) {
	inner := &recordingSink{dropped: 7}
	c := NewCounting(inner)

	s := c.Stats()
	assert.Zero(t, s.Sent)
	assert.True(t, s.LastSent.IsZero())

	c.Send(color.RGB(10, 20, 30))
	c.Send(color.RGB(40, 50, 60))

	s = c.Stats()
	assert.Equal(t, uint64(2), s.Sent)
	assert.Equal(t, uint64(7), s.Dropped)
	assert.Equal(t, color.RGB(40, 50, 60), s.Last)
	assert.False(t, s.LastSent.IsZero())

	require.NoError(t, c.Close())
	assert.True(t, inner.closed)
}
