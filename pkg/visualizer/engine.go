// ABOUTME: Capture engine driving device lifecycle and the capture goroutine
// ABOUTME: Routes filled buffers through the loudness filter to the sink and re-arms them
package visualizer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FruityPi/fruitypi-go/pkg/audio"
	"github.com/FruityPi/fruitypi-go/pkg/capture"
	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/FruityPi/fruitypi-go/pkg/loudness"
	"github.com/rs/zerolog"
)

const (
	// DefaultJoinTimeout bounds how long Close waits for the capture goroutine
	DefaultJoinTimeout = 2 * time.Second
)

// Config holds engine configuration
type Config struct {
	// Driver opens the capture device (required)
	Driver capture.Driver

	// DeviceID selects the device; empty means the driver default
	DeviceID string

	// Format is the capture format; BlockAlign is derived when zero
	Format audio.Format

	// Sink receives every produced color (required)
	Sink Sink

	// NumBuffers is the ring size (default: 5)
	NumBuffers int

	// BuffersPerSecond sizes each buffer (default: 120)
	BuffersPerSecond int

	// Filter tunes the loudness filter
	Filter loudness.Config

	// JoinTimeout bounds the capture goroutine join on Close (default: 2s)
	JoinTimeout time.Duration

	// EventQueue is the capacity of the device event channel (default: 2*NumBuffers+2, minimum NumBuffers+2)
	EventQueue int

	Logger zerolog.Logger

	// OnColor is called from the capture goroutine after each color is sent
	OnColor func(color.Color)

	// OnStateChange is called after every lifecycle transition
	OnStateChange func(State)
}

// Engine captures audio and forwards one color per filled buffer
type Engine struct {
	config Config
	format audio.Format
	log    zerolog.Logger
	warn   zerolog.Logger

	// Guarded by mu; only the control path touches these
	mu      sync.Mutex
	handle  capture.Handle
	ring    *capture.Ring
	done    chan struct{}
	result  ShutdownResult
	closing atomic.Bool

	state     atomic.Int32
	lastColor atomic.Uint32

	buffersFilled atomic.Uint64
	emptyBuffers  atomic.Uint64
	colorsSent    atomic.Uint64
	formatErrors  atomic.Uint64
	rearmFailures atomic.Uint64
	slotFills     atomic.Pointer[[]atomic.Uint64]
}

// NewEngine validates the configuration and applies defaults
func NewEngine(config Config) (*Engine, error) {
	if config.Driver == nil {
		return nil, fmt.Errorf("capture driver is required")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("color sink is required")
	}
	if config.NumBuffers == 0 {
		config.NumBuffers = capture.DefaultBuffers
	}
	if config.BuffersPerSecond == 0 {
		config.BuffersPerSecond = audio.DefaultBuffersPerSecond
	}
	if config.JoinTimeout == 0 {
		config.JoinTimeout = DefaultJoinTimeout
	}
	if config.EventQueue == 0 {
		config.EventQueue = 2*config.NumBuffers + 2
	}
	// Drivers may send while holding their own locks; every lent buffer plus
	// the open and close events must fit without blocking
	if config.EventQueue < config.NumBuffers+2 {
		config.EventQueue = config.NumBuffers + 2
	}

	format := config.Format.Normalize()
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capture format: %w", err)
	}

	log := config.Logger.With().Str("component", "engine").Str("driver", config.Driver.Name()).Logger()

	e := &Engine{
		config: config,
		format: format,
		log:    log,
		warn:   log.Sample(&zerolog.BurstSampler{Burst: 1, Period: 5 * time.Second}),
	}
	e.storeColor(loudness.DefaultBase)
	if config.Filter.Base != nil {
		e.storeColor(*config.Filter.Base)
	}
	return e, nil
}

// Initialize allocates the buffer ring, opens the device and arms every buffer.
// On failure everything acquired is released and the engine stays uninitialized.
func (e *Engine) Initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch st := e.State(); st {
	case StateUninitialized:
	case StateClosed:
		return ErrClosed
	default:
		return fmt.Errorf("%w: initialize while %s", ErrInvalidState, st)
	}

	if !e.format.Supported() {
		e.log.Warn().
			Int("bits_per_sample", e.format.BitsPerSample).
			Msg("Only 16-bit samples are supported, colors will not be produced for this format")
	}

	ring, err := capture.NewRingForFormat(e.format, e.config.NumBuffers, e.config.BuffersPerSecond)
	if err != nil {
		return fmt.Errorf("failed to allocate buffer ring: %w", err)
	}
	filter := loudness.New(e.config.Filter)
	fills := make([]atomic.Uint64, ring.Len())
	e.slotFills.Store(&fills)

	events := make(chan capture.Event, e.config.EventQueue)
	handle, err := e.config.Driver.Open(e.config.DeviceID, e.format, events)
	if err != nil {
		return deviceError(capture.OpOpen, -1, err)
	}

	done := make(chan struct{})
	go e.captureLoop(handle, ring, filter, events, done)

	registered := 0
	for i := 0; i < ring.Len(); i++ {
		if err := handle.Register(ring.Slot(i)); err != nil {
			e.release(handle, ring, registered, done)
			return deviceError(capture.OpRegister, i, err)
		}
		registered++
	}

	for i := 0; i < ring.Len(); i++ {
		if err := ring.Lend(i); err != nil {
			e.release(handle, ring, registered, done)
			return fmt.Errorf("failed to lend slot %d: %w", i, err)
		}
		if err := handle.Arm(ring.Slot(i)); err != nil {
			_, _ = ring.Reclaim(i, 0)
			e.release(handle, ring, registered, done)
			return deviceError(capture.OpArm, i, err)
		}
	}

	e.handle = handle
	e.ring = ring
	e.done = done

	e.log.Info().
		Str("format", e.format.String()).
		Int("buffers", ring.Len()).
		Int("buffer_bytes", ring.BufferLen()).
		Msg("Capture engine initialized")

	e.setState(StateInitialized)
	return nil
}

// release undoes a partial Initialize
func (e *Engine) release(handle capture.Handle, ring *capture.Ring, registered int, done <-chan struct{}) {
	e.closing.Store(true)
	defer e.closing.Store(false)

	for i := 0; i < registered; i++ {
		if err := handle.Unregister(ring.Slot(i)); err != nil {
			e.log.Warn().Err(err).Int("slot", i).Msg("Failed to unregister buffer during rollback")
			continue
		}
		if ring.Slot(i).Owner() == capture.LentToDevice {
			_, _ = ring.Reclaim(i, 0)
		}
	}
	if err := handle.Close(); err != nil {
		e.log.Warn().Err(err).Msg("Failed to close device during rollback")
		return
	}

	select {
	case <-done:
	case <-time.After(e.config.JoinTimeout):
		e.log.Warn().Msg("Capture goroutine did not exit during rollback")
	}
}

// Start begins capture; it is a no-op when already running
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch st := e.State(); st {
	case StateRunning:
		return nil
	case StateInitialized, StateStopped:
	case StateClosed:
		return ErrClosed
	default:
		return fmt.Errorf("%w: start while %s", ErrInvalidState, st)
	}

	if err := e.handle.Start(); err != nil {
		return deviceError(capture.OpStart, -1, err)
	}

	e.log.Info().Msg("Capture started")
	e.setState(StateRunning)
	return nil
}

// Stop halts capture; it is a no-op when not running
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch st := e.State(); st {
	case StateRunning:
	case StateInitialized, StateStopped:
		return nil
	case StateClosed:
		return ErrClosed
	default:
		return fmt.Errorf("%w: stop while %s", ErrInvalidState, st)
	}

	if err := e.handle.Stop(); err != nil {
		return deviceError(capture.OpStop, -1, err)
	}

	e.log.Info().Msg("Capture stopped")
	e.setState(StateStopped)
	return nil
}

// Close tears the engine down: stop if running, unregister every buffer, close the
// device, then join the capture goroutine only if all of that succeeded. Close never
// fails; repeated calls return the first result.
func (e *Engine) Close() ShutdownResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.State() {
	case StateClosed:
		return e.result
	case StateUninitialized:
		e.result = ShutdownClean
		e.setState(StateClosed)
		return e.result
	}

	e.closing.Store(true)

	if e.State() == StateRunning {
		if err := e.handle.Stop(); err != nil {
			e.log.Warn().Err(err).Msg("Failed to stop device during teardown")
		}
	}

	released := true
	for i := 0; i < e.ring.Len(); i++ {
		buf := e.ring.Slot(i)
		if err := e.handle.Unregister(buf); err != nil {
			released = false
			e.log.Warn().Err(err).Int("slot", i).Msg("Failed to unregister buffer")
			continue
		}
		if buf.Owner() == capture.LentToDevice {
			// Loses the race harmlessly if the capture goroutine reclaimed it first
			_, _ = e.ring.Reclaim(i, 0)
		}
	}

	if err := e.handle.Close(); err != nil {
		released = false
		e.log.Warn().Err(err).Msg("Failed to close device")
	}

	e.result = ShutdownAbandoned
	if released {
		select {
		case <-e.done:
			e.result = ShutdownClean
		case <-time.After(e.config.JoinTimeout):
			e.log.Warn().Dur("timeout", e.config.JoinTimeout).Msg("Capture goroutine did not exit, abandoning it")
		}
	} else {
		e.log.Warn().Msg("Device teardown reported errors, abandoning capture goroutine")
	}

	e.log.Info().Stringer("result", e.result).Msg("Capture engine closed")
	e.setState(StateClosed)
	return e.result
}

// captureLoop consumes device events in delivery order until EventClosed
func (e *Engine) captureLoop(handle capture.Handle, ring *capture.Ring, filter *loudness.Filter,
	events <-chan capture.Event, done chan<- struct{}) {
	defer close(done)

	sampleSize := e.format.BytesPerSample()

	for ev := range events {
		switch ev.Kind {
		case capture.EventBufferFilled:
			e.handleFilled(handle, ring, filter, ev, sampleSize)
		case capture.EventOpened:
			e.log.Debug().Msg("Device opened")
		case capture.EventClosed:
			e.log.Debug().Msg("Device closed, capture loop exiting")
			return
		}
	}
}

func (e *Engine) handleFilled(handle capture.Handle, ring *capture.Ring, filter *loudness.Filter,
	ev capture.Event, sampleSize int) {
	buf, err := ring.Reclaim(ev.Slot, ev.BytesRecorded)
	if err != nil {
		e.log.Debug().Err(err).Int("slot", ev.Slot).Msg("Ignoring completion for buffer not held by device")
		return
	}

	e.buffersFilled.Add(1)
	(*e.slotFills.Load())[buf.Index()].Add(1)

	data, err := buf.Recorded()
	switch {
	case err != nil:
		e.log.Error().Err(err).Int("slot", buf.Index()).Msg("Reclaimed buffer not readable")
	case len(data) == 0:
		e.emptyBuffers.Add(1)
	default:
		c, err := filter.Process(data, sampleSize)
		if err != nil {
			e.formatErrors.Add(1)
			e.warn.Warn().Err(err).Int("slot", buf.Index()).Msg("Skipping buffer")
			break
		}
		e.storeColor(c)
		e.config.Sink.Send(c)
		e.colorsSent.Add(1)
		if e.config.OnColor != nil {
			e.config.OnColor(c)
		}
	}

	e.rearm(handle, ring, buf.Index())
}

// rearm lends the slot that just completed back to the device
func (e *Engine) rearm(handle capture.Handle, ring *capture.Ring, slot int) {
	if err := ring.Lend(slot); err != nil {
		e.log.Error().Err(err).Int("slot", slot).Msg("Cannot lend buffer back to device")
		return
	}
	if err := handle.Arm(ring.Slot(slot)); err != nil {
		_, _ = ring.Reclaim(slot, 0)
		if e.closing.Load() {
			e.log.Debug().Err(err).Int("slot", slot).Msg("Device refused buffer during teardown")
			return
		}
		e.rearmFailures.Add(1)
		e.warn.Warn().Err(err).Int("slot", slot).Msg("Failed to re-arm buffer")
	}
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	if e.config.OnStateChange != nil {
		e.config.OnStateChange(s)
	}
}

// Format returns the normalized capture format
func (e *Engine) Format() audio.Format {
	return e.format
}

// LastColor returns the most recent color sent (the base color before any)
func (e *Engine) LastColor() color.Color {
	v := e.lastColor.Load()
	return color.RGB(uint8(v>>16), uint8(v>>8), uint8(v))
}

func (e *Engine) storeColor(c color.Color) {
	e.lastColor.Store(uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B))
}

// Stats returns a snapshot of the capture counters
func (e *Engine) Stats() Stats {
	var slots []uint64
	if fills := e.slotFills.Load(); fills != nil {
		slots = make([]uint64, len(*fills))
		for i := range *fills {
			slots[i] = (*fills)[i].Load()
		}
	}

	return Stats{
		BuffersFilled: e.buffersFilled.Load(),
		EmptyBuffers:  e.emptyBuffers.Load(),
		ColorsSent:    e.colorsSent.Load(),
		FormatErrors:  e.formatErrors.Load(),
		RearmFailures: e.rearmFailures.Load(),
		SlotFills:     slots,
	}
}

// deviceError wraps err as a *capture.DeviceError unless the driver already did
func deviceError(op capture.Op, slot int, err error) error {
	var de *capture.DeviceError
	if errors.As(err, &de) {
		return de
	}
	return capture.NewDeviceError(op, slot, err)
}
