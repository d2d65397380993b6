// ABOUTME: Malgo-based capture driver
// ABOUTME: Records from a miniaudio capture or loopback device into the pump
package input

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/FruityPi/fruitypi-go/pkg/audio"
	"github.com/FruityPi/fruitypi-go/pkg/capture"
	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"
)

// MalgoConfig configures the malgo driver
type MalgoConfig struct {
	// Loopback records what the system is playing (WASAPI only)
	Loopback bool
	Logger   zerolog.Logger
}

// Malgo captures through miniaudio
type Malgo struct {
	config MalgoConfig
	log    zerolog.Logger
}

// DeviceInfo describes one capture device
type DeviceInfo struct {
	Index     int
	Name      string
	IsDefault bool
}

// NewMalgo creates a malgo capture driver
func NewMalgo(config MalgoConfig) *Malgo {
	return &Malgo{
		config: config,
		log:    config.Logger.With().Str("driver", DriverMalgo).Logger(),
	}
}

// Name implements capture.Driver
func (m *Malgo) Name() string {
	return DriverMalgo
}

// ListDevices enumerates the capture devices miniaudio can see
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}

// selectDevice matches deviceID against the enumeration: an index, an exact
// name, then a name substring. Empty selects the system default (nil).
func selectDevice(infos []malgo.DeviceInfo, deviceID string) (*malgo.DeviceInfo, error) {
	if deviceID == "" || deviceID == "default" {
		return nil, nil
	}

	if idx, err := strconv.Atoi(deviceID); err == nil {
		if idx < 0 || idx >= len(infos) {
			return nil, fmt.Errorf("device index %d out of range (%d devices)", idx, len(infos))
		}
		return &infos[idx], nil
	}

	for i := range infos {
		if infos[i].Name() == deviceID {
			return &infos[i], nil
		}
	}

	needle := strings.ToLower(deviceID)
	for i := range infos {
		if strings.Contains(strings.ToLower(infos[i].Name()), needle) {
			return &infos[i], nil
		}
	}

	return nil, fmt.Errorf("no capture device matches %q", deviceID)
}

// formatType maps a sample width to a miniaudio format
func formatType(bitsPerSample int) (malgo.FormatType, error) {
	switch bitsPerSample {
	case 8:
		return malgo.FormatU8, nil
	case 16:
		return malgo.FormatS16, nil
	case 24:
		return malgo.FormatS24, nil
	case 32:
		return malgo.FormatS32, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24, 32)", bitsPerSample)
	}
}

// Open implements capture.Driver
func (m *Malgo) Open(deviceID string, format audio.Format, events chan<- capture.Event) (capture.Handle, error) {
	format = format.Normalize()
	if err := format.Validate(); err != nil {
		return nil, err
	}
	sampleFormat, err := formatType(format.BitsPerSample)
	if err != nil {
		return nil, err
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	kind := malgo.Capture
	if m.config.Loopback {
		kind = malgo.Loopback
	}

	deviceConfig := malgo.DefaultDeviceConfig(kind)
	deviceConfig.Capture.Format = sampleFormat
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	name := "default"
	if !m.config.Loopback {
		infos, err := ctx.Devices(malgo.Capture)
		if err != nil {
			m.freeContext(ctx)
			return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
		}
		info, err := selectDevice(infos, deviceID)
		if err != nil {
			m.freeContext(ctx)
			return nil, err
		}
		if info != nil {
			deviceConfig.Capture.DeviceID = info.ID.Pointer()
			name = info.Name()
		}
	}

	h := &malgoHandle{
		pump: newPump(format, events, m.log),
		ctx:  ctx,
		log:  m.log,
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			h.pump.write(input)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		m.freeContext(ctx)
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	h.device = device
	h.pump.open()

	m.log.Info().
		Str("device", name).
		Str("format", format.String()).
		Bool("loopback", m.config.Loopback).
		Msg("Capture device opened")

	return h, nil
}

func (m *Malgo) freeContext(ctx *malgo.AllocatedContext) {
	if err := ctx.Uninit(); err != nil {
		m.log.Warn().Err(err).Msg("malgo context uninit error")
	}
	ctx.Free()
}

// malgoHandle is an open miniaudio capture device
type malgoHandle struct {
	*pump

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	log    zerolog.Logger
}

// Start implements capture.Handle
func (h *malgoHandle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.device == nil {
		return ErrDeviceClosed
	}
	if err := h.pump.start(); err != nil {
		return err
	}
	if err := h.device.Start(); err != nil {
		_ = h.pump.stop()
		return fmt.Errorf("failed to start device: %w", err)
	}
	return nil
}

// Stop implements capture.Handle
func (h *malgoHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.device == nil {
		return ErrDeviceClosed
	}
	if err := h.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop device: %w", err)
	}
	return h.pump.stop()
}

// Close implements capture.Handle
func (h *malgoHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.device == nil {
		return ErrDeviceClosed
	}

	// Uninit stops the device and waits for the callback to return
	h.device.Uninit()
	h.device = nil

	if err := h.ctx.Uninit(); err != nil {
		h.log.Warn().Err(err).Msg("malgo context uninit error")
	}
	h.ctx.Free()
	h.ctx = nil

	return h.pump.close()
}
