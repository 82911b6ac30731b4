package stream

import (
	"math"
	"sync/atomic"
)

// Counters are updated by the realtime callback and the worker and read by anyone.
type Counters struct {
	Underflows  atomic.Uint64
	Overflows   atomic.Uint64
	Cycles      atomic.Uint64
	Frames      atomic.Uint64
	IOErrors    atomic.Uint64
	ShortWrites atomic.Uint64
	Rewinds     atomic.Uint64
	// float32 bits of the largest absolute sample since the last TakePeak
	peak atomic.Uint32
}

// notePeak raises the stored peak to p if p is larger.
func (c *Counters) notePeak(p float32) {
	bits := math.Float32bits(p)
	for {
		old := c.peak.Load()
		if math.Float32frombits(old) >= p || c.peak.CompareAndSwap(old, bits) {
			return
		}
	}
}

// TakePeak returns the peak level since the previous call and resets it.
func (c *Counters) TakePeak() float32 {
	return math.Float32frombits(c.peak.Swap(0))
}

// Stats is a point-in-time snapshot of a session.
type Stats struct {
	State        State
	Mode         Mode
	Channels     int
	SampleRate   int
	RingCapacity int
	RingFill     int
	Underflows   uint64
	Overflows    uint64
	Cycles       uint64
	Frames       uint64
	IOErrors     uint64
	ShortWrites  uint64
	Rewinds      uint64
}

func (c *Counters) snapshot() Stats {
	return Stats{
		Underflows:  c.Underflows.Load(),
		Overflows:   c.Overflows.Load(),
		Cycles:      c.Cycles.Load(),
		Frames:      c.Frames.Load(),
		IOErrors:    c.IOErrors.Load(),
		ShortWrites: c.ShortWrites.Load(),
		Rewinds:     c.Rewinds.Load(),
	}
}
