// ABOUTME: Fixed pool of capture buffers lent to the device and reclaimed on completion
// ABOUTME: One backing allocation split into equally sized slots, never resized
package capture

import (
	"fmt"
	"sync/atomic"

	"github.com/FruityPi/fruitypi-go/pkg/audio"
)

// DefaultBuffers is the number of slots in a ring when none is configured
const DefaultBuffers = 5

// Ownership tells which side may touch a buffer's bytes
type Ownership int32

const (
	OwnedByEngine Ownership = iota
	LentToDevice
)

func (o Ownership) String() string {
	if o == LentToDevice {
		return "device"
	}
	return "engine"
}

// Buffer is one slot of a Ring
type Buffer struct {
	index  int
	data   []byte
	filled atomic.Int64
	owner  atomic.Int32
}

// Index is the stable slot number of this buffer
func (b *Buffer) Index() int {
	return b.index
}

// Len is the capacity of the buffer in bytes
func (b *Buffer) Len() int {
	return len(b.data)
}

// Owner reports who currently holds the buffer
func (b *Buffer) Owner() Ownership {
	return Ownership(b.owner.Load())
}

// Filled is the byte count recorded by the device on the last completion
func (b *Buffer) Filled() int {
	return int(b.filled.Load())
}

// Recorded returns the bytes the device filled. Only valid while the engine owns the buffer.
func (b *Buffer) Recorded() ([]byte, error) {
	if b.Owner() != OwnedByEngine {
		return nil, ErrBufferLent
	}
	return b.data[:b.Filled()], nil
}

// Writable returns the full region for the device to fill. Only valid while lent.
func (b *Buffer) Writable() ([]byte, error) {
	if b.Owner() != LentToDevice {
		return nil, ErrBufferNotLent
	}
	return b.data, nil
}

// Ring is a fixed pool of capture buffers
type Ring struct {
	backing   []byte
	slots     []*Buffer
	bufferLen int
}

// NewRing allocates n buffers of bufferLen bytes each
func NewRing(n, bufferLen int) (*Ring, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid buffer count: %d", n)
	}
	if bufferLen <= 0 {
		return nil, fmt.Errorf("invalid buffer length: %d", bufferLen)
	}

	r := &Ring{
		backing:   make([]byte, n*bufferLen),
		slots:     make([]*Buffer, n),
		bufferLen: bufferLen,
	}
	for i := range r.slots {
		// Full slice expression so a slot can never grow into its neighbour
		lo, hi := i*bufferLen, (i+1)*bufferLen
		r.slots[i] = &Buffer{index: i, data: r.backing[lo:hi:hi]}
	}
	return r, nil
}

// NewRingForFormat sizes each buffer to 1/buffersPerSecond of audio in format
func NewRingForFormat(format audio.Format, n, buffersPerSecond int) (*Ring, error) {
	format = format.Normalize()
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return NewRing(n, format.BufferLen(buffersPerSecond))
}

// Len is the number of slots
func (r *Ring) Len() int {
	return len(r.slots)
}

// BufferLen is the size of every slot in bytes
func (r *Ring) BufferLen() int {
	return r.bufferLen
}

// TotalBytes is the size of the backing allocation
func (r *Ring) TotalBytes() int {
	return len(r.backing)
}

// Slot returns the buffer at index i, or nil when out of range
func (r *Ring) Slot(i int) *Buffer {
	if i < 0 || i >= len(r.slots) {
		return nil
	}
	return r.slots[i]
}

// Owner reports who holds slot i
func (r *Ring) Owner(i int) (Ownership, error) {
	b := r.Slot(i)
	if b == nil {
		return OwnedByEngine, ErrSlotOutOfRange
	}
	return b.Owner(), nil
}

// Lend hands slot i to the device. Fails if it is already lent.
func (r *Ring) Lend(i int) error {
	b := r.Slot(i)
	if b == nil {
		return ErrSlotOutOfRange
	}
	if !b.owner.CompareAndSwap(int32(OwnedByEngine), int32(LentToDevice)) {
		return ErrBufferLent
	}
	return nil
}

// Reclaim takes slot i back from the device, recording how many bytes it filled.
// bytesRecorded is clamped to the slot size.
func (r *Ring) Reclaim(i, bytesRecorded int) (*Buffer, error) {
	b := r.Slot(i)
	if b == nil {
		return nil, ErrSlotOutOfRange
	}
	if bytesRecorded < 0 {
		bytesRecorded = 0
	}
	if bytesRecorded > len(b.data) {
		bytesRecorded = len(b.data)
	}
	// filled is published before the ownership flip so Recorded never sees a stale count
	prev := b.filled.Swap(int64(bytesRecorded))
	if !b.owner.CompareAndSwap(int32(LentToDevice), int32(OwnedByEngine)) {
		b.filled.Store(prev)
		return nil, ErrBufferNotLent
	}
	return b, nil
}

// Lent counts the slots currently held by the device
func (r *Ring) Lent() int {
	n := 0
	for _, b := range r.slots {
		if b.Owner() == LentToDevice {
			n++
		}
	}
	return n
}
