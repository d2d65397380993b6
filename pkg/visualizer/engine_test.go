// ABOUTME: Tests for the capture engine lifecycle and capture loop
// ABOUTME: Uses a scripted in-memory driver to deliver buffer completions
package visualizer

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/FruityPi/fruitypi-go/pkg/audio"
	"github.com/FruityPi/fruitypi-go/pkg/capture"
	"github.com/FruityPi/fruitypi-go/pkg/color"
	"github.com/FruityPi/fruitypi-go/pkg/loudness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var errDevice = errors.New("device exploded")

type fakeDriver struct {
	openErr error
	handle  *fakeHandle
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) Open(deviceID string, format audio.Format, events chan<- capture.Event) (capture.Handle, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	if d.handle == nil {
		d.handle = &fakeHandle{}
	}
	d.handle.events = events
	d.handle.format = format
	events <- capture.Opened()
	return d.handle, nil
}

type fakeHandle struct {
	mu     sync.Mutex
	events chan<- capture.Event
	format audio.Format

	registerErrAt int // 1-based slot+1 that fails to register, 0 disables
	armErrAt      int
	startErr      error
	stopErr       error
	unregisterErr error
	closeErr      error
	silentClose   bool // Close does not emit EventClosed
	closedSent    bool
	failRearm     bool

	buffers    map[int]*capture.Buffer
	armed      []int
	starts     int
	stops      int
	unregister []int
	closes     int
}

func (h *fakeHandle) Register(b *capture.Buffer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.registerErrAt == b.Index()+1 {
		return errDevice
	}
	if h.buffers == nil {
		h.buffers = make(map[int]*capture.Buffer)
	}
	h.buffers[b.Index()] = b
	return nil
}

func (h *fakeHandle) Arm(b *capture.Buffer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.armErrAt == b.Index()+1 {
		return errDevice
	}
	if h.failRearm && len(h.armed) >= len(h.buffers) {
		return errDevice
	}
	if _, ok := h.buffers[b.Index()]; !ok {
		return errors.New("buffer not registered")
	}
	h.armed = append(h.armed, b.Index())
	return nil
}

func (h *fakeHandle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts++
	return h.startErr
}

func (h *fakeHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	return h.stopErr
}

func (h *fakeHandle) Unregister(b *capture.Buffer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregister = append(h.unregister, b.Index())
	if h.unregisterErr != nil {
		return h.unregisterErr
	}
	delete(h.buffers, b.Index())
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	if h.closeErr != nil {
		return h.closeErr
	}
	if !h.silentClose {
		h.sendClosed()
	}
	return nil
}

// finish releases a capture goroutine left behind by a failed teardown
func (h *fakeHandle) finish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendClosed()
}

func (h *fakeHandle) sendClosed() {
	if !h.closedSent {
		h.closedSent = true
		h.events <- capture.Closed()
	}
}

// fill writes pcm into a lent slot and reports its completion
func (h *fakeHandle) fill(t *testing.T, slot int, pcm []byte) {
	t.Helper()
	h.mu.Lock()
	b := h.buffers[slot]
	h.mu.Unlock()
	require.NotNil(t, b, "slot %d not registered", slot)

	dst, err := b.Writable()
	require.NoError(t, err)
	n := copy(dst, pcm)
	h.events <- capture.Filled(slot, n)
}

func (h *fakeHandle) armedSlots() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.armed...)
}

// pcm16 builds n samples alternating between +v and -v
func pcm16(v int16, n int) []byte {
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := v
		if i%2 == 1 {
			s = -v
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

type chanSink chan color.Color

func (s chanSink) Send(c color.Color) { s <- c }

func (s chanSink) next(t *testing.T) color.Color {
	t.Helper()
	select {
	case c := <-s:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for color")
		return color.Color{}
	}
}

func (s chanSink) none(t *testing.T) {
	t.Helper()
	select {
	case c := <-s:
		t.Fatalf("unexpected color %s", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestEngine(t *testing.T, driver *fakeDriver, sink chanSink, mutate ...func(*Config)) *Engine {
	t.Helper()
	cfg := Config{
		Driver:      driver,
		Format:      audio.DefaultFormat(),
		Sink:        sink,
		JoinTimeout: 200 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	return e
}

func TestNewEngineRequiresDriverAndSink(t *testing.T) {
	_, err := NewEngine(Config{Sink: chanSink(nil)})
	assert.Error(t, err)

	_, err = NewEngine(Config{Driver: &fakeDriver{}})
	assert.Error(t, err)
}

func TestEngineProducesOneColorPerBuffer(t *testing.T) {
	defer goleak.VerifyNone(t)

	driver := &fakeDriver{}
	sink := make(chanSink, 8)
	var states []State
	e := newTestEngine(t, driver, sink, func(c *Config) {
		c.OnStateChange = func(s State) { states = append(states, s) }
	})

	require.NoError(t, e.Initialize())
	assert.Equal(t, StateInitialized, e.State())
	assert.Len(t, driver.handle.armedSlots(), capture.DefaultBuffers)

	require.NoError(t, e.Start())
	assert.Equal(t, StateRunning, e.State())

	h := driver.handle
	h.fill(t, 0, pcm16(0, 367))
	first := sink.next(t)
	h.fill(t, 1, pcm16(1000, 367))
	second := sink.next(t)
	h.fill(t, 2, pcm16(4000, 367))
	third := sink.next(t)

	assert.Equal(t, loudness.DefaultBase, first)
	assert.LessOrEqual(t, first.Brightness(), second.Brightness())
	assert.LessOrEqual(t, second.Brightness(), third.Brightness())
	assert.Equal(t, third, e.LastColor())

	require.NoError(t, e.Stop())
	assert.Equal(t, ShutdownClean, e.Close())

	stats := e.Stats()
	assert.Equal(t, uint64(3), stats.BuffersFilled)
	assert.Equal(t, uint64(3), stats.ColorsSent)
	assert.Equal(t, []uint64{1, 1, 1, 0, 0}, stats.SlotFills)

	assert.Equal(t, []State{StateInitialized, StateRunning, StateStopped, StateClosed}, states)
}

func TestEngineRearmsCompletedSlot(t *testing.T) {
	defer goleak.VerifyNone(t)

	driver := &fakeDriver{}
	sink := make(chanSink, 8)
	e := newTestEngine(t, driver, sink)
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Start())

	driver.handle.fill(t, 3, pcm16(500, 100))
	sink.next(t)

	require.Eventually(t, func() bool {
		return len(driver.handle.armedSlots()) == capture.DefaultBuffers+1
	}, time.Second, 5*time.Millisecond)
	armed := driver.handle.armedSlots()
	assert.Equal(t, 3, armed[len(armed)-1])

	assert.Equal(t, ShutdownClean, e.Close())
}

func TestEngineEmptyBufferIsRearmedWithoutColor(t *testing.T) {
	defer goleak.VerifyNone(t)

	driver := &fakeDriver{}
	sink := make(chanSink, 8)
	e := newTestEngine(t, driver, sink)
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Start())

	driver.handle.fill(t, 1, nil)
	sink.none(t)

	require.Eventually(t, func() bool {
		return len(driver.handle.armedSlots()) == capture.DefaultBuffers+1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), e.Stats().EmptyBuffers)
	assert.Equal(t, uint64(0), e.Stats().ColorsSent)

	assert.Equal(t, ShutdownClean, e.Close())
}

func TestEngineUnsupportedSampleWidthSkipsBuffer(t *testing.T) {
	defer goleak.VerifyNone(t)

	driver := &fakeDriver{}
	sink := make(chanSink, 8)
	e := newTestEngine(t, driver, sink, func(c *Config) {
		c.Format = audio.Format{SampleRate: 48000, BitsPerSample: 24, Channels: 1}
	})
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Start())

	driver.handle.fill(t, 0, make([]byte, 300))
	sink.none(t)

	require.Eventually(t, func() bool {
		return e.Stats().FormatErrors == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, loudness.DefaultBase, e.LastColor())

	assert.Equal(t, ShutdownClean, e.Close())
}

func TestEngineRearmFailureIsCounted(t *testing.T) {
	defer goleak.VerifyNone(t)

	driver := &fakeDriver{handle: &fakeHandle{failRearm: true}}
	sink := make(chanSink, 8)
	e := newTestEngine(t, driver, sink)
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Start())

	driver.handle.fill(t, 0, pcm16(100, 10))
	sink.next(t)

	require.Eventually(t, func() bool {
		return e.Stats().RearmFailures == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, ShutdownClean, e.Close())
}

func TestEngineStartStopIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	driver := &fakeDriver{}
	e := newTestEngine(t, driver, make(chanSink, 1))

	assert.ErrorIs(t, e.Stop(), ErrInvalidState)
	assert.ErrorIs(t, e.Start(), ErrInvalidState)

	require.NoError(t, e.Initialize())
	assert.ErrorIs(t, e.Initialize(), ErrInvalidState)

	require.NoError(t, e.Stop())
	require.NoError(t, e.Start())
	require.NoError(t, e.Start())
	require.NoError(t, e.Stop())
	require.NoError(t, e.Stop())

	assert.Equal(t, 1, driver.handle.starts)
	assert.Equal(t, 1, driver.handle.stops)

	assert.Equal(t, ShutdownClean, e.Close())
	assert.Equal(t, 1, driver.handle.stops, "close must not stop a stopped device")
}

func TestEngineCloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	driver := &fakeDriver{}
	e := newTestEngine(t, driver, make(chanSink, 1))
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Start())

	assert.Equal(t, ShutdownClean, e.Close())
	assert.Equal(t, ShutdownClean, e.Close())
	assert.Equal(t, 1, driver.handle.closes)
	assert.Equal(t, 1, driver.handle.stops)

	assert.ErrorIs(t, e.Start(), ErrClosed)
	assert.ErrorIs(t, e.Stop(), ErrClosed)
	assert.ErrorIs(t, e.Initialize(), ErrClosed)
}

func TestEngineCloseBeforeInitialize(t *testing.T) {
	e := newTestEngine(t, &fakeDriver{}, make(chanSink, 1))
	assert.Equal(t, ShutdownClean, e.Close())
	assert.Equal(t, StateClosed, e.State())
}

func TestEngineInitializeFailures(t *testing.T) {
	tests := []struct {
		name   string
		driver *fakeDriver
		op     capture.Op
	}{
		{"open", &fakeDriver{openErr: errDevice}, capture.OpOpen},
		{"register", &fakeDriver{handle: &fakeHandle{registerErrAt: 3}}, capture.OpRegister},
		{"arm", &fakeDriver{handle: &fakeHandle{armErrAt: 2}}, capture.OpArm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			e := newTestEngine(t, tt.driver, make(chanSink, 1))
			err := e.Initialize()
			require.Error(t, err)

			var de *capture.DeviceError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.op, de.Op)
			assert.ErrorIs(t, err, errDevice)
			assert.Equal(t, StateUninitialized, e.State())

			if h := tt.driver.handle; h != nil && tt.op != capture.OpOpen {
				assert.Equal(t, 1, h.closes, "device must be closed on rollback")
			}
		})
	}
}

func TestEngineStartFailureKeepsState(t *testing.T) {
	defer goleak.VerifyNone(t)

	driver := &fakeDriver{handle: &fakeHandle{startErr: errDevice}}
	e := newTestEngine(t, driver, make(chanSink, 1))
	require.NoError(t, e.Initialize())

	err := e.Start()
	var de *capture.DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, capture.OpStart, de.Op)
	assert.Equal(t, StateInitialized, e.State())

	assert.Equal(t, ShutdownClean, e.Close())
}

func TestEngineCloseAbandonsOnTeardownError(t *testing.T) {
	tests := []struct {
		name   string
		handle *fakeHandle
	}{
		{"unregister fails", &fakeHandle{unregisterErr: errDevice}},
		{"close fails", &fakeHandle{closeErr: errDevice}},
		{"goroutine never exits", &fakeHandle{silentClose: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)

			driver := &fakeDriver{handle: tt.handle}
			e := newTestEngine(t, driver, make(chanSink, 1))
			require.NoError(t, e.Initialize())
			require.NoError(t, e.Start())

			assert.Equal(t, ShutdownAbandoned, e.Close())
			assert.Equal(t, StateClosed, e.State())
			assert.Len(t, tt.handle.unregister, capture.DefaultBuffers, "every buffer must be attempted")

			tt.handle.finish()
			time.Sleep(20 * time.Millisecond)
		})
	}
}

func TestEngineCloseStopFailureStillJoins(t *testing.T) {
	defer goleak.VerifyNone(t)

	driver := &fakeDriver{handle: &fakeHandle{stopErr: errDevice}}
	e := newTestEngine(t, driver, make(chanSink, 1))
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Start())

	assert.Equal(t, ShutdownClean, e.Close())
}
