// ABOUTME: Capture driver constructors and the name-based factory
// ABOUTME: Selects malgo, portaudio, tone or file capture from configuration
package input

import (
	"fmt"

	"github.com/FruityPi/fruitypi-go/pkg/audio"
	"github.com/FruityPi/fruitypi-go/pkg/capture"
	"github.com/rs/zerolog"
)

// Driver names accepted by New
const (
	DriverMalgo     = "malgo"
	DriverPortAudio = "portaudio"
	DriverTone      = "tone"
	DriverFile      = "file"
)

// Defaults for the tone driver
const (
	DefaultToneFrequency = 440.0
	DefaultToneEnvelope  = 0.5
)

// Options configures whichever driver New builds
type Options struct {
	// Loopback captures the system output instead of a microphone (malgo only)
	Loopback bool

	// File is the WAV/MP3/FLAC file replayed by the file driver
	File string

	// ToneFrequency and ToneEnvelope shape the tone driver (Hz)
	ToneFrequency float64
	ToneEnvelope  float64

	// BuffersPerSecond paces the synthetic drivers
	BuffersPerSecond int

	Logger zerolog.Logger
}

// Names lists the drivers New understands
func Names() []string {
	return []string{DriverMalgo, DriverPortAudio, DriverTone, DriverFile}
}

// New builds the named driver
func New(name string, opts Options) (capture.Driver, error) {
	switch name {
	case "", DriverMalgo:
		return NewMalgo(MalgoConfig{Loopback: opts.Loopback, Logger: opts.Logger}), nil
	case DriverPortAudio:
		return NewPortAudio(opts.Logger), nil
	case DriverTone:
		return NewTone(opts), nil
	case DriverFile:
		if opts.File == "" {
			return nil, fmt.Errorf("file driver needs an audio file")
		}
		return NewFile(opts.File, opts), nil
	default:
		return nil, fmt.Errorf("unknown capture driver %q (available: %v)", name, Names())
	}
}

// NewTone returns a driver that synthesizes a sine wave with a swelling
// envelope at the requested format, paced in real time
func NewTone(opts Options) capture.Driver {
	freq := opts.ToneFrequency
	if freq <= 0 {
		freq = DefaultToneFrequency
	}
	env := opts.ToneEnvelope
	if env <= 0 {
		env = DefaultToneEnvelope
	}
	return &pacedDriver{
		name:             DriverTone,
		buffersPerSecond: opts.BuffersPerSecond,
		log:              opts.Logger,
		open: func(format audio.Format) (frameSource, error) {
			return newToneSource(format.SampleRate, freq, env), nil
		},
	}
}

// NewFile returns a driver that replays an audio file in a loop, paced in
// real time and converted to the requested format
func NewFile(path string, opts Options) capture.Driver {
	return &pacedDriver{
		name:             DriverFile,
		buffersPerSecond: opts.BuffersPerSecond,
		log:              opts.Logger.With().Str("file", path).Logger(),
		open: func(audio.Format) (frameSource, error) {
			return openFileSource(path)
		},
	}
}
