// ABOUTME: Error types for device and buffer operations
// ABOUTME: DeviceError wraps driver failures with the rejected operation
package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrBufferLent is returned when the engine touches a buffer the device owns
	ErrBufferLent = errors.New("buffer is lent to the device")

	// ErrBufferNotLent is returned when a device-side view is requested for an engine-owned buffer
	ErrBufferNotLent = errors.New("buffer is not lent to the device")

	// ErrSlotOutOfRange is returned for slot indexes outside the ring
	ErrSlotOutOfRange = errors.New("slot index out of range")
)

// Op names the device operation that failed
type Op string

const (
	OpOpen       Op = "open"
	OpRegister   Op = "register"
	OpArm        Op = "arm"
	OpStart      Op = "start"
	OpStop       Op = "stop"
	OpUnregister Op = "unregister"
	OpClose      Op = "close"
)

// DeviceError reports that the driver rejected an operation
type DeviceError struct {
	Op   Op
	Slot int // -1 when the operation is not buffer specific
	Err  error
}

// NewDeviceError wraps err for op; slot is -1 for device-wide operations
func NewDeviceError(op Op, slot int, err error) *DeviceError {
	return &DeviceError{Op: op, Slot: slot, Err: err}
}

func (e *DeviceError) Error() string {
	if e.Slot >= 0 {
		return fmt.Sprintf("device %s (slot %d): %v", e.Op, e.Slot, e.Err)
	}
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}
