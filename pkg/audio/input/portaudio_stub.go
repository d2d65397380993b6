//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package input

import (
	"fmt"

	"github.com/FruityPi/fruitypi-go/pkg/audio"
	"github.com/FruityPi/fruitypi-go/pkg/capture"
	"github.com/rs/zerolog"
)

// PortAudio capture driver (stub)
type PortAudio struct{}

// NewPortAudio creates a PortAudio capture driver
func NewPortAudio(zerolog.Logger) capture.Driver {
	return &PortAudio{}
}

// Name implements capture.Driver
func (p *PortAudio) Name() string {
	return DriverPortAudio
}

// Open implements capture.Driver
func (p *PortAudio) Open(string, audio.Format, chan<- capture.Event) (capture.Handle, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio)")
}
