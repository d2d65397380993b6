// ABOUTME: Capture driver package for recording audio
// ABOUTME: Provides malgo, PortAudio, tone and file implementations of capture.Driver
// Package input provides capture devices for the visualizer engine.
//
// The malgo driver records from a sound card, or from the system output in
// loopback mode. The portaudio driver needs -tags portaudio. The tone and file
// drivers emulate a device in software and are paced in real time.
//
// Example:
//
//	driver, err := input.New("tone", input.Options{})
//	engine, err := visualizer.NewEngine(visualizer.Config{Driver: driver, Sink: sink})
package input
