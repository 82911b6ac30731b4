package stream

import (
	"github.com/tphakala/playrec/internal/engine"
	"github.com/tphakala/playrec/internal/frames"
	"github.com/tphakala/playrec/internal/ringbuffer"
)

// Callback moves one engine cycle between the ring and the port buffers. Process runs on
// the engine's realtime thread: it never blocks, allocates, locks or logs. Shortfalls are
// only counted, once per cycle.
type Callback struct {
	mode     Mode
	ring     *ringbuffer.Ring
	staging  *frames.Interleaved
	counters *Counters
}

// NewCallback builds a callback over ring using staging as its private scratch buffer.
func NewCallback(mode Mode, ring *ringbuffer.Ring, staging *frames.Interleaved, counters *Counters) *Callback {
	return &Callback{mode: mode, ring: ring, staging: staging, counters: counters}
}

// Process handles one cycle of nframes frames. Cycles longer than the staging buffer are
// handled in staging-sized chunks.
func (c *Callback) Process(nframes int, bufs engine.Buffers) {
	if nframes <= 0 {
		return
	}

	var short bool
	var peak float32
	chunk := c.staging.Capacity()
	samples := c.staging.Samples()

	for done := 0; done < nframes; {
		n := min(nframes-done, chunk)

		if c.mode == Playback {
			got := c.ring.Read(samples, n)
			if got < n {
				// underflow: the missing tail plays as silence
				c.staging.ZeroFrom(got, n)
				short = true
			}
			c.staging.Deinterleave(bufs, nframes, done, n)
		} else {
			c.staging.Interleave(bufs, nframes, done, n)
			if c.ring.Write(samples, n) < n {
				// overflow: the rest of the cycle is dropped so the file has no gap
				// inside it, and unread data is kept
				peak = max(peak, c.staging.Peak(n))
				short = true
				break
			}
		}

		peak = max(peak, c.staging.Peak(n))
		done += n
	}

	if short {
		if c.mode == Playback {
			c.counters.Underflows.Add(1)
		} else {
			c.counters.Overflows.Add(1)
		}
	}
	c.counters.Cycles.Add(1)
	c.counters.Frames.Add(uint64(nframes))
	c.counters.notePeak(peak)
}
