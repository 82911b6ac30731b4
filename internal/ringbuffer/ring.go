// Package ringbuffer implements a wait-free single-producer/single-consumer ring of
// interleaved float32 audio frames.
//
// Exactly one goroutine may call Write and exactly one (possibly different) goroutine may
// call Read. The restriction is not checked at runtime; two writers or two readers corrupt
// the buffer. Neither side ever waits for the other: Write returns fewer frames when the
// ring is full and Read returns fewer frames when it is empty.
//
// Both indices run modulo twice the capacity so that a full ring (w-r == capacity) is
// distinguishable from an empty one (w == r) without a shared counter. Frame data is
// stored before the index that publishes it, and each side loads the opposite index
// before touching data. sync/atomic operations are sequentially consistent, which is
// stronger than the release/acquire pairing this needs.
package ringbuffer

import (
	"sync/atomic"

	"github.com/tphakala/playrec/internal/errors"
)

// MaxChannels bounds the frame stride.
const MaxChannels = 1024

// cacheLine is the assumed cache line size for padding between the two indices.
const cacheLine = 64

var (
	ErrCapacityNotPowerOfTwo = errors.NewStd("ring capacity must be a positive power of two")
	ErrBackingTooSmall       = errors.NewStd("backing memory smaller than channels x capacity")
	ErrInvalidChannels       = errors.NewStd("channel count out of range")
)

// Ring is a fixed-capacity circular buffer of interleaved frames.
type Ring struct {
	// written by the producer, read by the consumer
	writeIdx atomic.Uint64
	_        [cacheLine - 8]byte

	// written by the consumer, read by the producer
	readIdx atomic.Uint64
	_       [cacheLine - 8]byte

	data     []float32
	channels int
	capacity uint64
	mask     uint64 // capacity - 1, maps an index to a frame slot
	wrap     uint64 // 2*capacity - 1, keeps indices in [0, 2*capacity)
}

// New builds a ring over backing, which must hold at least channels*capacityFrames samples.
// The ring never allocates; backing stays owned by the caller.
func New(channels, capacityFrames int, backing []float32) (*Ring, error) {
	if channels < 1 || channels > MaxChannels {
		return nil, errors.New(ErrInvalidChannels).
			Component("ringbuffer").
			Category(errors.CategoryConfiguration).
			Context("channels", channels).
			Build()
	}
	if !IsPowerOfTwo(capacityFrames) {
		return nil, errors.New(ErrCapacityNotPowerOfTwo).
			Component("ringbuffer").
			Category(errors.CategoryConfiguration).
			Context("capacity_frames", capacityFrames).
			Build()
	}
	if len(backing) < channels*capacityFrames {
		return nil, errors.New(ErrBackingTooSmall).
			Component("ringbuffer").
			Category(errors.CategoryResource).
			Context("backing_samples", len(backing)).
			Context("required_samples", channels*capacityFrames).
			Build()
	}

	c := uint64(capacityFrames)
	return &Ring{
		data:     backing[:channels*capacityFrames],
		channels: channels,
		capacity: c,
		mask:     c - 1,
		wrap:     2*c - 1,
	}, nil
}

// Alloc allocates backing memory for a ring of the given shape and builds the ring.
func Alloc(channels, capacityFrames int) (*Ring, error) {
	if channels < 1 || channels > MaxChannels || !IsPowerOfTwo(capacityFrames) {
		// let New report the precise reason
		return New(channels, capacityFrames, nil)
	}
	return New(channels, capacityFrames, make([]float32, channels*capacityFrames))
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo rounds n up to the next power of two. Values below 1 round to 1.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Channels returns the number of samples per frame.
func (r *Ring) Channels() int { return r.channels }

// Capacity returns the ring size in frames.
func (r *Ring) Capacity() int { return int(r.capacity) }

func (r *Ring) used(w, rd uint64) uint64 {
	return (w - rd) & r.wrap
}

// AvailableToRead returns the number of frames that can be read.
func (r *Ring) AvailableToRead() int {
	return int(r.used(r.writeIdx.Load(), r.readIdx.Load()))
}

// AvailableToWrite returns the number of frames that can be written.
func (r *Ring) AvailableToWrite() int {
	return int(r.capacity - r.used(r.writeIdx.Load(), r.readIdx.Load()))
}

// Write copies up to count frames from src into the ring and returns the number of
// frames stored. count is clamped to the whole frames present in src. Producer only.
func (r *Ring) Write(src []float32, count int) int {
	if count <= 0 {
		return 0
	}
	if limit := len(src) / r.channels; count > limit {
		count = limit
	}

	w := r.writeIdx.Load()
	rd := r.readIdx.Load()

	free := r.capacity - r.used(w, rd)
	n := uint64(count)
	if n > free {
		n = free
	}
	if n == 0 {
		return 0
	}

	ch := uint64(r.channels)
	pos := w & r.mask
	first := r.capacity - pos
	if first >= n {
		copy(r.data[pos*ch:(pos+n)*ch], src[:n*ch])
	} else {
		copy(r.data[pos*ch:], src[:first*ch])
		copy(r.data[:(n-first)*ch], src[first*ch:n*ch])
	}

	r.writeIdx.Store((w + n) & r.wrap)
	return int(n)
}

// Read copies up to count frames from the ring into dst and returns the number of
// frames copied. count is clamped to the whole frames dst can hold. Consumer only.
func (r *Ring) Read(dst []float32, count int) int {
	if count <= 0 {
		return 0
	}
	if limit := len(dst) / r.channels; count > limit {
		count = limit
	}

	rd := r.readIdx.Load()
	w := r.writeIdx.Load()

	avail := r.used(w, rd)
	n := uint64(count)
	if n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}

	ch := uint64(r.channels)
	pos := rd & r.mask
	first := r.capacity - pos
	if first >= n {
		copy(dst[:n*ch], r.data[pos*ch:(pos+n)*ch])
	} else {
		copy(dst[:first*ch], r.data[pos*ch:])
		copy(dst[first*ch:n*ch], r.data[:(n-first)*ch])
	}

	r.readIdx.Store((rd + n) & r.wrap)
	return int(n)
}

// Reset empties the ring. Only valid while neither producer nor consumer is active.
func (r *Ring) Reset() {
	r.writeIdx.Store(0)
	r.readIdx.Store(0)
}
