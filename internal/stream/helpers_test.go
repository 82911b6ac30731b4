package stream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/playrec/internal/audiofile"
	"github.com/tphakala/playrec/internal/frames"
	"github.com/tphakala/playrec/internal/ringbuffer"
)

// ramp returns frames*channels samples where sample (i, c) holds i*channels+c.
func ramp(frameCount, channels int) []float32 {
	out := make([]float32, frameCount*channels)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func newRing(t testing.TB, channels, capacity int) *ringbuffer.Ring {
	t.Helper()
	r, err := ringbuffer.Alloc(channels, capacity)
	require.NoError(t, err)
	return r
}

func newStaging(t testing.TB, channels, capacity int) *frames.Interleaved {
	t.Helper()
	b, err := frames.NewInterleaved(channels, capacity)
	require.NoError(t, err)
	return b
}

func rampSource(frameCount, channels int) *audiofile.MemorySource {
	return audiofile.NewMemorySource(ramp(frameCount, channels), channels, 48000)
}
