// ABOUTME: Engine lifecycle states, shutdown results and statistics
// ABOUTME: Uninitialized -> Initialized -> Running <-> Stopped -> Closed
package visualizer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the current state
	ErrInvalidState = errors.New("invalid engine state")

	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("engine closed")
)

// State is the engine lifecycle state
type State int32

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateStopped
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ShutdownResult tells whether Close joined the capture goroutine
type ShutdownResult int

const (
	// ShutdownClean means the device released every buffer and the capture goroutine was joined
	ShutdownClean ShutdownResult = iota + 1
	// ShutdownAbandoned means teardown hit a driver error or timeout and the goroutine was left behind
	ShutdownAbandoned
)

func (r ShutdownResult) String() string {
	switch r {
	case ShutdownClean:
		return "clean"
	case ShutdownAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of capture counters
type Stats struct {
	BuffersFilled uint64   // completions received from the device
	EmptyBuffers  uint64   // completions with zero bytes recorded
	ColorsSent    uint64   // colors handed to the sink
	FormatErrors  uint64   // buffers skipped because of the sample width
	RearmFailures uint64   // buffers the device refused to take back
	SlotFills     []uint64 // completions per ring slot
}
