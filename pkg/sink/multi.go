// ABOUTME: Fan-out sink that forwards every color to several sinks
// ABOUTME: Used when more than one transport is configured
package sink

import (
	"errors"
	"io"

	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/FruityPi/fruitypi-go/pkg/visualizer"
)

// Multi forwards each color to every sink in order
type Multi []visualizer.Sink

// Send implements visualizer.Sink
func (m Multi) Send(c color.Color) {
	for _, s := range m {
		s.Send(c)
	}
}

// Dropped sums the drops of the sinks that track them
func (m Multi) Dropped() uint64 {
	var n uint64
	for _, s := range m {
		if d, ok := s.(Dropper); ok {
			n += d.Dropped()
		}
	}
	return n
}

// Close closes every sink and joins their errors
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if closer, ok := s.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
