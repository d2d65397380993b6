// ABOUTME: Buffer queue shared by every capture driver
// ABOUTME: Stages raw PCM in a byte ring and fills armed buffers in arm order
package input

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FruityPi/fruitypi-go/pkg/audio"
	"github.com/FruityPi/fruitypi-go/pkg/capture"
	"github.com/rs/zerolog"
	"github.com/smallnest/ringbuffer"
)

var (
	// ErrDeviceClosed is returned by handle operations after Close
	ErrDeviceClosed = errors.New("device closed")

	// ErrNotRegistered is returned when arming or unregistering an unknown buffer
	ErrNotRegistered = errors.New("buffer not registered")
)

// stagingBuffers is how many default-sized capture buffers worth of PCM the
// staging ring holds at minimum
const stagingBuffers = 4

// stagingSize covers the larger of a few default buffers and one catch-up burst
func stagingSize(format audio.Format) int {
	format = format.Normalize()
	size := format.BufferLen(audio.DefaultBuffersPerSecond) * stagingBuffers
	burst := int(int64(format.SampleRate) * int64(format.BlockAlign) * int64(maxCatchUp) / int64(time.Second))
	if burst > size {
		size = burst
	}
	return size
}

// pump implements the buffer half of capture.Handle. Drivers push PCM through
// write; the pump copies it into armed buffers and reports each one when full.
// Events are sent while holding mu, which is safe because the engine sizes the
// event channel above the number of buffers that can be outstanding.
type pump struct {
	mu         sync.Mutex
	format     audio.Format
	events     chan<- capture.Event
	staging    *ringbuffer.RingBuffer
	registered map[int]*capture.Buffer
	queue      []*capture.Buffer
	offset     int
	running    bool
	closed     bool
	log        zerolog.Logger

	dropped atomic.Uint64
}

func newPump(format audio.Format, events chan<- capture.Event, log zerolog.Logger) *pump {
	return &pump{
		format:     format,
		events:     events,
		staging:    ringbuffer.New(stagingSize(format)),
		registered: make(map[int]*capture.Buffer),
		log:        log,
	}
}

// Register makes a buffer known to the device
func (p *pump) Register(b *capture.Buffer) error {
	if b == nil {
		return fmt.Errorf("nil buffer")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrDeviceClosed
	}
	p.registered[b.Index()] = b
	return nil
}

// Arm queues a registered, lent buffer for filling
func (p *pump) Arm(b *capture.Buffer) error {
	if b == nil {
		return fmt.Errorf("nil buffer")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrDeviceClosed
	}
	if p.registered[b.Index()] != b {
		return ErrNotRegistered
	}
	if _, err := b.Writable(); err != nil {
		return err
	}
	for _, q := range p.queue {
		if q == b {
			return fmt.Errorf("buffer %d already armed", b.Index())
		}
	}
	p.queue = append(p.queue, b)

	// Audio that arrived while nothing was armed goes out first
	p.drain()
	return nil
}

// Unregister forgets a buffer, pulling it from the arm queue if needed
func (p *pump) Unregister(b *capture.Buffer) error {
	if b == nil {
		return fmt.Errorf("nil buffer")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.registered[b.Index()] != b {
		return ErrNotRegistered
	}
	delete(p.registered, b.Index())

	for i, q := range p.queue {
		if q == b {
			if i == 0 {
				p.offset = 0
			}
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			break
		}
	}
	return nil
}

// start lets write accept audio
func (p *pump) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrDeviceClosed
	}
	p.running = true
	return nil
}

// stop halts intake and hands back the buffer being filled, even if empty
func (p *pump) stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrDeviceClosed
	}
	if !p.running {
		return nil
	}
	p.running = false
	p.drain()
	p.staging.Reset()

	if len(p.queue) > 0 {
		p.complete()
	}
	return nil
}

// open announces the device; called once by the driver after Open succeeds
func (p *pump) open() {
	p.events <- capture.Opened()
}

// close announces the end of the event stream. Buffers still queued are not reported.
func (p *pump) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrDeviceClosed
	}
	p.closed = true
	p.running = false
	if n := len(p.queue); n > 0 {
		p.log.Debug().Int("buffers", n).Msg("Closing with buffers still armed")
	}
	p.queue = nil
	p.offset = 0
	p.events <- capture.Closed()
	return nil
}

// write accepts captured PCM in the device format. It never blocks. Armed
// buffers are filled straight from pcm; only the remainder is staged, and
// what does not fit in the staging ring is dropped and counted.
func (p *pump) write(pcm []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || p.closed || len(pcm) == 0 {
		return 0
	}

	// Older staged audio goes first; direct filling only happens once it is gone
	p.drain()
	n := 0
	if p.staging.IsEmpty() {
		n = p.fill(pcm)
	}
	if n == len(pcm) {
		return n
	}

	staged, err := p.staging.Write(pcm[n:])
	if rest := len(pcm) - n; staged < rest {
		p.dropped.Add(uint64(rest - staged))
		if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
			p.log.Debug().Err(err).Msg("Staging write failed")
		}
	}
	return n + staged
}

// fill copies pcm into the queued buffers and returns how much it used; caller holds mu
func (p *pump) fill(pcm []byte) int {
	written := 0
	for len(p.queue) > 0 && written < len(pcm) {
		dst, err := p.queue[0].Writable()
		if err != nil {
			p.queue = p.queue[1:]
			p.offset = 0
			continue
		}

		n := copy(dst[p.offset:], pcm[written:])
		written += n
		p.offset += n
		if p.offset == len(dst) {
			p.complete()
		}
	}
	return written
}

// drain moves staged bytes into the queued buffers; caller holds mu
func (p *pump) drain() {
	for len(p.queue) > 0 && p.staging.Length() > 0 {
		dst, err := p.queue[0].Writable()
		if err != nil {
			// The engine took it back behind our back; forget it
			p.queue = p.queue[1:]
			p.offset = 0
			continue
		}

		n, _ := p.staging.Read(dst[p.offset:])
		p.offset += n
		if p.offset == len(dst) {
			p.complete()
		}
	}
}

// complete reports the head buffer; caller holds mu
func (p *pump) complete() {
	head := p.queue[0]
	p.queue = p.queue[1:]
	n := p.offset
	p.offset = 0
	p.events <- capture.Filled(head.Index(), n)
}

// armed reports how many buffers are waiting to be filled
func (p *pump) armed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Dropped is the number of captured bytes lost because no buffer was armed
func (p *pump) Dropped() uint64 {
	return p.dropped.Load()
}
