//go:build portaudio

// ABOUTME: PortAudio capture driver
// ABOUTME: Cross-platform 16-bit audio input using PortAudio
package input

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/FruityPi/fruitypi-go/pkg/audio"
	"github.com/FruityPi/fruitypi-go/pkg/capture"
	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// PortAudio captures through PortAudio
type PortAudio struct {
	log zerolog.Logger
}

// NewPortAudio creates a PortAudio capture driver
func NewPortAudio(log zerolog.Logger) capture.Driver {
	return &PortAudio{log: log.With().Str("driver", DriverPortAudio).Logger()}
}

// Name implements capture.Driver
func (p *PortAudio) Name() string {
	return DriverPortAudio
}

// Open implements capture.Driver. Only 16-bit samples are supported.
func (p *PortAudio) Open(deviceID string, format audio.Format, events chan<- capture.Event) (capture.Handle, error) {
	format = format.Normalize()
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if format.BitsPerSample != 16 {
		return nil, fmt.Errorf("portaudio driver supports 16-bit capture only, got %d", format.BitsPerSample)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	device, err := p.selectDevice(deviceID)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	params := portaudio.HighLatencyParameters(device, nil)
	params.Input.Channels = format.Channels
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = format.SampleRate / audio.DefaultBuffersPerSecond

	h := &portAudioHandle{pump: newPump(format, events, p.log)}

	var pcm []byte
	stream, err := portaudio.OpenStream(params, func(in []int16) {
		if cap(pcm) < len(in)*2 {
			pcm = make([]byte, len(in)*2)
		}
		pcm = pcm[:len(in)*2]
		for i, s := range in {
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
		}
		h.pump.write(pcm)
	})
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	h.stream = stream
	h.pump.open()

	p.log.Info().Str("device", device.Name).Str("format", format.String()).Msg("Capture device opened")
	return h, nil
}

func (p *PortAudio) selectDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" || deviceID == "default" {
		return portaudio.DefaultInputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	inputs := make([]*portaudio.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			inputs = append(inputs, d)
		}
	}

	if idx, err := strconv.Atoi(deviceID); err == nil {
		if idx < 0 || idx >= len(inputs) {
			return nil, fmt.Errorf("device index %d out of range (%d devices)", idx, len(inputs))
		}
		return inputs[idx], nil
	}

	needle := strings.ToLower(deviceID)
	for _, d := range inputs {
		if strings.Contains(strings.ToLower(d.Name), needle) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no capture device matches %q", deviceID)
}

type portAudioHandle struct {
	*pump

	mu     sync.Mutex
	stream *portaudio.Stream
}

func (h *portAudioHandle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stream == nil {
		return ErrDeviceClosed
	}
	if err := h.pump.start(); err != nil {
		return err
	}
	return h.stream.Start()
}

func (h *portAudioHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stream == nil {
		return ErrDeviceClosed
	}
	if err := h.stream.Stop(); err != nil {
		return err
	}
	return h.pump.stop()
}

func (h *portAudioHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stream == nil {
		return ErrDeviceClosed
	}
	if err := h.stream.Close(); err != nil {
		return err
	}
	h.stream = nil
	if err := portaudio.Terminate(); err != nil {
		return err
	}
	return h.pump.close()
}
