// ABOUTME: Color sink contract consumed by the capture engine
// ABOUTME: Send must be best-effort and must never block the capture goroutine
package visualizer

import "github.com/FruityPi/fruitypi-go/pkg/color"

// Sink delivers colors downstream. Send is called from the capture goroutine;
// implementations must not block and may drop colors.
type Sink interface {
	Send(c color.Color)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(color.Color)

// Send calls f(c)
func (f SinkFunc) Send(c color.Color) {
	f(c)
}
