// ABOUTME: Capture buffer ring and device driver contract
// ABOUTME: Defines CaptureBuffer ownership, Ring, Event, Driver and Handle
// Package capture describes the boundary between the visualizer engine and
// an audio input device.
//
// A Ring owns a fixed pool of equally sized CaptureBuffers allocated once.
// Each buffer is either owned by the engine or lent to the device; the
// ownership tag is switched atomically and engine-side reads fail while a
// buffer is lent out.
//
// Devices are reached through a Driver, which opens a Handle and delivers
// Events on a channel supplied by the engine:
//
//	events := make(chan capture.Event, 16)
//	h, err := driver.Open("", format, events)
//	for i := 0; i < ring.Len(); i++ {
//	    err = h.Register(ring.Slot(i))
//	}
//	ring.Lend(0)
//	err = h.Arm(ring.Slot(0))
//	err = h.Start()
package capture
