// ABOUTME: Common sink interfaces and the counting wrapper
// ABOUTME: Tracks sent and dropped colors for metrics and the TUI
package sink

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/FruityPi/fruitypi-go/pkg/visualizer"
)

// Sink is a visualizer.Sink that holds resources
type Sink interface {
	visualizer.Sink
	io.Closer
}

// Dropper is implemented by sinks that can lose colors
type Dropper interface {
	Dropped() uint64
}

// Stats is a snapshot of a Counting sink
type Stats struct {
	Sent     uint64
	Dropped  uint64
	Last     color.Color
	LastSent time.Time
}

// Counting wraps a sink and records what passes through it
type Counting struct {
	inner    visualizer.Sink
	sent     atomic.Uint64
	last     atomic.Uint32
	lastSent atomic.Int64
}

// NewCounting wraps inner
func NewCounting(inner visualizer.Sink) *Counting {
	return &Counting{inner: inner}
}

// Send implements visualizer.Sink
func (c *Counting) Send(col color.Color) {
	c.inner.Send(col)
	c.last.Store(uint32(col.R)<<16 | uint32(col.G)<<8 | uint32(col.B))
	c.lastSent.Store(time.Now().UnixNano())
	c.sent.Add(1)
}

// Stats returns the counters; Dropped comes from the wrapped sink if it tracks drops
func (c *Counting) Stats() Stats {
	s := Stats{Sent: c.sent.Load()}
	if d, ok := c.inner.(Dropper); ok {
		s.Dropped = d.Dropped()
	}
	v := c.last.Load()
	s.Last = color.RGB(uint8(v>>16), uint8(v>>8), uint8(v))
	if ns := c.lastSent.Load(); ns != 0 {
		s.LastSent = time.Unix(0, ns)
	}
	return s
}

// Close closes the wrapped sink if it has anything to release
func (c *Counting) Close() error {
	if closer, ok := c.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
