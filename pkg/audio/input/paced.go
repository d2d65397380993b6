// ABOUTME: Real-time paced handle for synthetic and file-backed capture
// ABOUTME: Feeds a frame source through the pump at the capture sample rate
package input

import (
	"sync"
	"time"

	"github.com/FruityPi/fruitypi-go/pkg/audio"
	"github.com/FruityPi/fruitypi-go/pkg/capture"
	"github.com/rs/zerolog"
)

// maxCatchUp caps how much audio one tick may produce after a stall
const maxCatchUp = 250 * time.Millisecond

// pacedHandle emulates a capture device: while started, a goroutine pulls
// frames from the source on a ticker and pushes them into the pump
type pacedHandle struct {
	*pump

	source    frameSource
	converter *converter
	format    audio.Format
	tick      time.Duration
	log       zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

func newPacedHandle(source frameSource, format audio.Format, events chan<- capture.Event,
	buffersPerSecond int, log zerolog.Logger) *pacedHandle {
	if buffersPerSecond <= 0 {
		buffersPerSecond = audio.DefaultBuffersPerSecond
	}
	return &pacedHandle{
		pump:      newPump(format, events, log),
		source:    source,
		converter: newConverter(source.SampleRate(), source.Channels(), format),
		format:    format,
		tick:      time.Second / time.Duration(buffersPerSecond),
		log:       log,
	}
}

// Start begins producing audio
func (h *pacedHandle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.pump.start(); err != nil {
		return err
	}
	if h.stopCh != nil {
		return nil
	}

	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	go h.run(h.stopCh, h.doneCh)
	return nil
}

// Stop halts production and returns the partially filled buffer
func (h *pacedHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.halt()
	return h.pump.stop()
}

// Close stops production, releases the source and ends the event stream
func (h *pacedHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.halt()
	if err := h.source.Close(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to close audio source")
	}
	return h.pump.close()
}

// halt joins the producer goroutine; caller holds mu
func (h *pacedHandle) halt() {
	if h.stopCh == nil {
		return
	}
	close(h.stopCh)
	<-h.doneCh
	h.stopCh = nil
	h.doneCh = nil
}

func (h *pacedHandle) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	started := time.Now()
	var produced int64
	var frames []int16
	var pcm []byte

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		// Frames owed since start, so ticker jitter does not drift the rate
		elapsed := time.Since(started)
		owed := int64(elapsed) * int64(h.format.SampleRate) / int64(time.Second)
		want := owed - produced
		if limit := int64(h.catchUp()) * int64(h.format.SampleRate) / int64(time.Second); want > limit {
			produced = owed - limit
			want = limit
		}
		if want <= 0 {
			continue
		}

		srcSamples := h.converter.framesFor(int(want)) * h.source.Channels()
		if cap(frames) < srcSamples {
			frames = make([]int16, srcSamples)
		}
		n, err := h.source.Read(frames[:srcSamples])
		if err != nil {
			h.log.Error().Err(err).Msg("Audio source failed, producing silence")
			n = srcSamples
			clear(frames[:n])
		}

		pcm = h.converter.convert(frames[:n], pcm[:0])
		h.pump.write(pcm)
		produced += int64(len(pcm) / h.format.BlockAlign)
	}
}

// catchUp is the most audio a single tick may hand the pump, never less than two ticks
func (h *pacedHandle) catchUp() time.Duration {
	if limit := 2 * h.tick; limit > maxCatchUp {
		return limit
	}
	return maxCatchUp
}

// pacedDriver opens a pacedHandle over a fresh frame source per Open
type pacedDriver struct {
	name             string
	buffersPerSecond int
	open             func(format audio.Format) (frameSource, error)
	log              zerolog.Logger
}

func (d *pacedDriver) Name() string {
	return d.name
}

func (d *pacedDriver) Open(deviceID string, format audio.Format, events chan<- capture.Event) (capture.Handle, error) {
	format = format.Normalize()
	if err := format.Validate(); err != nil {
		return nil, err
	}

	source, err := d.open(format)
	if err != nil {
		return nil, err
	}

	log := d.log.With().Str("driver", d.name).Logger()
	h := newPacedHandle(source, format, events, d.buffersPerSecond, log)
	h.pump.open()

	log.Info().
		Str("format", format.String()).
		Int("source_rate", source.SampleRate()).
		Int("source_channels", source.Channels()).
		Msg("Paced capture device opened")
	return h, nil
}
