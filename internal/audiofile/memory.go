package audiofile

import (
	"sync"
)

// MemorySource serves frames from an in-memory interleaved slice.
type MemorySource struct {
	samples  []float32
	channels int
	rate     int
	pos      int // in frames
	closed   bool
}

// NewMemorySource wraps samples, which must hold whole frames of channels samples each.
func NewMemorySource(samples []float32, channels, sampleRate int) *MemorySource {
	return &MemorySource{
		samples:  samples[:len(samples)-len(samples)%channels],
		channels: channels,
		rate:     sampleRate,
	}
}

func (m *MemorySource) Channels() int   { return m.channels }
func (m *MemorySource) SampleRate() int { return m.rate }

// Frames returns the total source length in frames.
func (m *MemorySource) Frames() int { return len(m.samples) / m.channels }

func (m *MemorySource) ReadFrames(dst []float32, count int) (int, error) {
	if m.closed {
		return 0, ErrClosed
	}
	count = min(count, len(dst)/m.channels, m.Frames()-m.pos)
	if count <= 0 {
		return 0, nil
	}
	copy(dst, m.samples[m.pos*m.channels:(m.pos+count)*m.channels])
	m.pos += count
	return count, nil
}

func (m *MemorySource) Rewind() error {
	if m.closed {
		return ErrClosed
	}
	m.pos = 0
	return nil
}

// Closed reports whether Close has been called.
func (m *MemorySource) Closed() bool { return m.closed }

func (m *MemorySource) Close() error {
	m.closed = true
	return nil
}

// MemorySink collects written frames in memory. A positive limit caps the total number
// of frames accepted, after which writes come back short.
type MemorySink struct {
	mu       sync.Mutex
	samples  []float32
	channels int
	rate     int
	limit    int
	closed   bool
}

// NewMemorySink creates a sink accepting at most limit frames, or unlimited frames when
// limit is zero.
func NewMemorySink(channels, sampleRate, limit int) *MemorySink {
	return &MemorySink{channels: channels, rate: sampleRate, limit: limit}
}

func (m *MemorySink) Channels() int   { return m.channels }
func (m *MemorySink) SampleRate() int { return m.rate }

func (m *MemorySink) WriteFrames(src []float32, count int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	count = min(count, len(src)/m.channels)
	if m.limit > 0 {
		count = min(count, m.limit-len(m.samples)/m.channels)
	}
	if count <= 0 {
		return 0, nil
	}
	m.samples = append(m.samples, src[:count*m.channels]...)
	return count, nil
}

// Samples returns a copy of everything written so far.
func (m *MemorySink) Samples() []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float32(nil), m.samples...)
}

// Frames returns the number of frames written so far.
func (m *MemorySink) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples) / m.channels
}

// Closed reports whether Close has been called.
func (m *MemorySink) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
