// ABOUTME: Color sink package for delivering colors to lights
// ABOUTME: Provides UDP, WebSocket and MQTT sinks plus fan-out and counting wrappers
// Package sink delivers visualizer colors to FruityPi lights.
//
// Every sink implements visualizer.Sink. Send never blocks the capture
// goroutine: UDP writes are fire-and-forget, the WebSocket sink queues and
// drops when full, and MQTT publishes at QoS 0 without waiting.
//
// Example:
//
//	udp, err := sink.DialUDP("192.168.1.40:7331", log)
//	counted := sink.NewCounting(udp)
//	engine, err := visualizer.NewEngine(visualizer.Config{Driver: d, Sink: counted})
package sink
