// ABOUTME: Driver and Handle interfaces implemented by audio input backends
// ABOUTME: Mirrors the open/prepare/add/start/stop/unprepare/close device lifecycle
package capture

import "github.com/FruityPi/fruitypi-go/pkg/audio"

// Driver opens capture devices
type Driver interface {
	// Name identifies the backend in logs ("malgo", "tone", ...)
	Name() string

	// Open opens deviceID ("" selects the default device) for format.
	// The handle delivers events on the supplied channel until it sends
	// EventClosed, which is always its last event. On error nothing is sent.
	Open(deviceID string, format audio.Format, events chan<- Event) (Handle, error)
}

// Handle is an open capture device
type Handle interface {
	// Register prepares buf for use with this device
	Register(buf *Buffer) error

	// Arm queues a registered, lent buffer to be filled with future audio
	Arm(buf *Buffer) error

	// Start begins capturing into armed buffers
	Start() error

	// Stop halts capture; the partially filled buffer is returned via EventBufferFilled
	Stop() error

	// Unregister releases buf; a queued buffer is dropped from the queue
	Unregister(buf *Buffer) error

	// Close releases the device and emits EventClosed
	Close() error
}
