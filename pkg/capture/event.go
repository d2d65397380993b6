// ABOUTME: Device events delivered to the capture goroutine
// ABOUTME: Opened, BufferFilled and Closed, in device delivery order
package capture

import "fmt"

// EventKind identifies a device notification
type EventKind int

const (
	EventOpened EventKind = iota + 1
	EventBufferFilled
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventBufferFilled:
		return "buffer-filled"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a single device notification
type Event struct {
	Kind          EventKind
	Slot          int // valid for EventBufferFilled
	BytesRecorded int // valid for EventBufferFilled
}

// Opened builds an EventOpened
func Opened() Event {
	return Event{Kind: EventOpened, Slot: -1}
}

// Filled builds an EventBufferFilled for slot
func Filled(slot, bytesRecorded int) Event {
	return Event{Kind: EventBufferFilled, Slot: slot, BytesRecorded: bytesRecorded}
}

// Closed builds an EventClosed
func Closed() Event {
	return Event{Kind: EventClosed, Slot: -1}
}
