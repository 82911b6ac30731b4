package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/playrec/internal/engine"
	"github.com/tphakala/playrec/internal/ringbuffer"
)

func TestPlaybackUnderflowZeroFills(t *testing.T) {
	t.Parallel()

	ring := newRing(t, 1, 256)
	src := make([]float32, 100)
	for i := range src {
		src[i] = 1
	}
	require.Equal(t, 100, ring.Write(src, 100))

	var counters Counters
	cb := NewCallback(Playback, ring, newStaging(t, 1, 256), &counters)
	bufs := engine.NewPortBuffers(0, 1, 128)

	cb.Process(128, bufs)

	out := bufs.Output(0, 128)
	for i := range 100 {
		assert.InDelta(t, 1.0, out[i], 0, "frame %d", i)
	}
	for i := 100; i < 128; i++ {
		assert.InDelta(t, 0.0, out[i], 0, "frame %d", i)
	}
	assert.Equal(t, uint64(1), counters.Underflows.Load())
	assert.Equal(t, uint64(1), counters.Cycles.Load())
	assert.Equal(t, uint64(128), counters.Frames.Load())

	// an empty ring still counts one underflow per cycle
	cb.Process(128, bufs)
	assert.Equal(t, uint64(2), counters.Underflows.Load())
	assert.Equal(t, make([]float32, 128), bufs.Output(0, 128))
}

func TestPlaybackDeinterleaves(t *testing.T) {
	t.Parallel()

	ring := newRing(t, 2, 64)
	require.Equal(t, 32, ring.Write(ramp(32, 2), 32))

	var counters Counters
	cb := NewCallback(Playback, ring, newStaging(t, 2, 64), &counters)
	bufs := engine.NewPortBuffers(0, 2, 32)
	cb.Process(32, bufs)

	left, right := bufs.Output(0, 32), bufs.Output(1, 32)
	for i := range 32 {
		assert.InDelta(t, float32(2*i), left[i], 0)
		assert.InDelta(t, float32(2*i+1), right[i], 0)
	}
	assert.Zero(t, counters.Underflows.Load())
	assert.InDelta(t, 63.0, counters.TakePeak(), 0)
	assert.Zero(t, counters.TakePeak(), "peak resets after take")
}

func TestRecordOverflowKeepsUnreadData(t *testing.T) {
	t.Parallel()

	ring := newRing(t, 1, 64)
	require.Equal(t, 64, ring.Write(ramp(64, 1), 64))

	var counters Counters
	cb := NewCallback(Record, ring, newStaging(t, 1, 64), &counters)
	bufs := engine.NewPortBuffers(1, 0, 64)
	in := bufs.Input(0, 64)
	for i := range in {
		in[i] = 100
	}

	cb.Process(64, bufs)
	assert.Equal(t, uint64(1), counters.Overflows.Load())

	got := make([]float32, 64)
	require.Equal(t, 64, ring.Read(got, 64))
	assert.Equal(t, ramp(64, 1), got)
}

func TestRecordOverflowWritesWhatFits(t *testing.T) {
	t.Parallel()

	ring := newRing(t, 1, 64)
	require.Equal(t, 60, ring.Write(make([]float32, 60), 60))

	var counters Counters
	cb := NewCallback(Record, ring, newStaging(t, 1, 64), &counters)
	bufs := engine.NewPortBuffers(1, 0, 8)
	copy(bufs.Input(0, 8), []float32{1, 2, 3, 4, 5, 6, 7, 8})

	cb.Process(8, bufs)
	assert.Equal(t, uint64(1), counters.Overflows.Load())
	assert.Equal(t, 64, ring.AvailableToRead())

	got := make([]float32, 64)
	ring.Read(got, 64)
	assert.Equal(t, []float32{1, 2, 3, 4}, got[60:])
}

// drainingInputs empties the ring the second time a capture port is read, like a worker
// draining between two chunks of one long cycle.
type drainingInputs struct {
	*engine.PortBuffers
	ring  *ringbuffer.Ring
	calls int
}

func (d *drainingInputs) Input(ch, nframes int) []float32 {
	d.calls++
	if d.calls == 2 {
		d.ring.Read(make([]float32, d.ring.Capacity()), d.ring.Capacity())
	}
	return d.PortBuffers.Input(ch, nframes)
}

func TestRecordOverflowDropsRestOfCycle(t *testing.T) {
	t.Parallel()

	ring := newRing(t, 1, 16)
	old := []float32{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1}
	require.Equal(t, 12, ring.Write(old, 12))

	var counters Counters
	cb := NewCallback(Record, ring, newStaging(t, 1, 8), &counters)
	bufs := &drainingInputs{PortBuffers: engine.NewPortBuffers(1, 0, 24), ring: ring}
	copy(bufs.PortBuffers.Input(0, 24), ramp(24, 1))

	cb.Process(24, bufs)

	assert.Equal(t, uint64(1), counters.Overflows.Load())
	assert.Equal(t, 1, bufs.calls, "chunks after the short write are not captured")

	got := make([]float32, 16)
	require.Equal(t, 16, ring.Read(got, 16))
	assert.Equal(t, append(old, 0, 1, 2, 3), got)
}

func TestRecordInterleaves(t *testing.T) {
	t.Parallel()

	ring := newRing(t, 2, 64)
	var counters Counters
	cb := NewCallback(Record, ring, newStaging(t, 2, 64), &counters)
	bufs := engine.NewPortBuffers(2, 0, 4)
	copy(bufs.Input(0, 4), []float32{1, 2, 3, 4})
	copy(bufs.Input(1, 4), []float32{-1, -2, -3, -4})

	cb.Process(4, bufs)

	got := make([]float32, 8)
	require.Equal(t, 4, ring.Read(got, 4))
	assert.Equal(t, []float32{1, -1, 2, -2, 3, -3, 4, -4}, got)
	assert.Zero(t, counters.Overflows.Load())
}

func TestCallbackChunksLargeCycles(t *testing.T) {
	t.Parallel()

	ring := newRing(t, 1, 256)
	require.Equal(t, 200, ring.Write(ramp(200, 1), 200))

	var counters Counters
	// staging holds 16 frames, the engine asks for 200 at once
	cb := NewCallback(Playback, ring, newStaging(t, 1, 16), &counters)
	bufs := engine.NewPortBuffers(0, 1, 200)
	cb.Process(200, bufs)

	assert.Equal(t, ramp(200, 1), bufs.Output(0, 200))
	assert.Zero(t, counters.Underflows.Load())
	assert.Equal(t, uint64(1), counters.Cycles.Load())
}

func TestCallbackIgnoresEmptyCycle(t *testing.T) {
	t.Parallel()

	var counters Counters
	cb := NewCallback(Playback, newRing(t, 1, 16), newStaging(t, 1, 16), &counters)
	cb.Process(0, engine.NewPortBuffers(0, 1, 16))
	assert.Zero(t, counters.Cycles.Load())
	assert.Zero(t, counters.Underflows.Load())
}

func TestCallbackProcessDoesNotAllocate(t *testing.T) {
	ring := newRing(t, 2, 1024)
	var counters Counters
	var bufs engine.Buffers = engine.NewPortBuffers(2, 2, 256)

	play := NewCallback(Playback, ring, newStaging(t, 2, 128), &counters)
	rec := NewCallback(Record, ring, newStaging(t, 2, 128), &counters)

	allocs := testing.AllocsPerRun(100, func() {
		rec.Process(256, bufs)
		play.Process(256, bufs)
	})
	assert.Zero(t, allocs)
}

func BenchmarkCallbackPlayback(b *testing.B) {
	ring := newRing(b, 2, 8192)
	var counters Counters
	cb := NewCallback(Playback, ring, newStaging(b, 2, 512), &counters)
	var bufs engine.Buffers = engine.NewPortBuffers(0, 2, 512)
	fill := make([]float32, 2*512)

	b.ReportAllocs()
	for b.Loop() {
		ring.Write(fill, 512)
		cb.Process(512, bufs)
	}
}
