// Package frames provides the fixed-size interleaved staging buffer used to move audio
// between files, the ring buffer and per-channel engine ports.
package frames

import (
	"github.com/tphakala/playrec/internal/errors"
)

// ErrInvalidShape is returned when a buffer is requested with non-positive dimensions.
var ErrInvalidShape = errors.NewStd("interleaved buffer needs positive channels and capacity")

// Interleaved is a frame-major float32 buffer: all channels of frame 0, then frame 1, ...
// It is allocated once and never resized.
type Interleaved struct {
	data     []float32
	channels int
	capacity int
}

// NewInterleaved allocates a buffer holding capacity frames of channels samples each.
func NewInterleaved(channels, capacity int) (*Interleaved, error) {
	if channels < 1 || capacity < 1 {
		return nil, errors.New(ErrInvalidShape).
			Component("frames").
			Category(errors.CategoryConfiguration).
			Context("channels", channels).
			Context("capacity", capacity).
			Build()
	}
	return &Interleaved{
		data:     make([]float32, channels*capacity),
		channels: channels,
		capacity: capacity,
	}, nil
}

// Channels returns the number of samples per frame.
func (b *Interleaved) Channels() int { return b.channels }

// Capacity returns the buffer size in frames.
func (b *Interleaved) Capacity() int { return b.capacity }

// Samples returns the whole backing slice.
func (b *Interleaved) Samples() []float32 { return b.data }

// Frames returns the samples of the first n frames, clamped to capacity.
func (b *Interleaved) Frames(n int) []float32 {
	n = b.clamp(n)
	return b.data[:n*b.channels]
}

// Frame returns the samples of frame i.
func (b *Interleaved) Frame(i int) []float32 {
	return b.data[i*b.channels : (i+1)*b.channels]
}

// At returns the sample of channel ch in frame i.
func (b *Interleaved) At(i, ch int) float32 {
	return b.data[b.index(i, ch)]
}

// Set stores v as the sample of channel ch in frame i.
func (b *Interleaved) Set(i, ch int, v float32) {
	b.data[b.index(i, ch)] = v
}

// index panics on out-of-range channels; the slice bounds check covers frames.
func (b *Interleaved) index(i, ch int) int {
	if uint(ch) >= uint(b.channels) {
		panic("frames: channel index out of range")
	}
	return i*b.channels + ch
}

// ZeroFrom clears frames [from, to).
func (b *Interleaved) ZeroFrom(from, to int) {
	from, to = b.clamp(from), b.clamp(to)
	if from >= to {
		return
	}
	clear(b.data[from*b.channels : to*b.channels])
}

func (b *Interleaved) clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > b.capacity {
		return b.capacity
	}
	return n
}

// InputPorts yields the per-channel capture buffers of one engine cycle.
type InputPorts interface {
	Input(channel, nframes int) []float32
}

// OutputPorts yields the per-channel playback buffers of one engine cycle.
type OutputPorts interface {
	Output(channel, nframes int) []float32
}

// Interleave copies frames [offset, offset+n) of every input port of an nframes cycle into
// the first n frames of b. n is clamped to capacity. Ports returning short buffers
// contribute silence for the missing frames.
func (b *Interleaved) Interleave(ports InputPorts, nframes, offset, n int) int {
	n = b.clamp(n)
	for ch := 0; ch < b.channels; ch++ {
		port := portWindow(ports.Input(ch, nframes), offset, n)
		i := 0
		for ; i < len(port); i++ {
			b.data[i*b.channels+ch] = port[i]
		}
		for ; i < n; i++ {
			b.data[i*b.channels+ch] = 0
		}
	}
	return n
}

// Deinterleave copies the first n frames of b into frames [offset, offset+n) of every
// output port of an nframes cycle.
func (b *Interleaved) Deinterleave(ports OutputPorts, nframes, offset, n int) int {
	n = b.clamp(n)
	for ch := 0; ch < b.channels; ch++ {
		port := portWindow(ports.Output(ch, nframes), offset, n)
		for i := range port {
			port[i] = b.data[i*b.channels+ch]
		}
	}
	return n
}

func portWindow(buf []float32, offset, n int) []float32 {
	if offset >= len(buf) {
		return nil
	}
	buf = buf[offset:]
	if len(buf) > n {
		buf = buf[:n]
	}
	return buf
}

// Peak returns the largest absolute sample value among the first n frames.
func (b *Interleaved) Peak(n int) float32 {
	var peak float32
	for _, s := range b.Frames(n) {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
