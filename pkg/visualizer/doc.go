// ABOUTME: Capture engine bridging an audio device to a color sink
// ABOUTME: Owns the buffer ring, the loudness filter and the capture goroutine
// Package visualizer turns live audio into a stream of colors.
//
// An Engine opens a capture device through a capture.Driver, lends it a
// fixed ring of buffers and runs one goroutine that consumes device events
// in order. Every filled buffer is run through the loudness filter, the
// resulting color is handed to a Sink, and the same buffer slot is armed
// again.
//
// Lifecycle:
//
//	engine, err := visualizer.NewEngine(visualizer.Config{
//	    Driver: input.NewTone(input.ToneConfig{}),
//	    Format: audio.DefaultFormat(),
//	    Sink:   udpSink,
//	})
//	err = engine.Initialize()
//	err = engine.Start()
//	...
//	err = engine.Stop()
//	result := engine.Close() // ShutdownClean or ShutdownAbandoned
package visualizer
