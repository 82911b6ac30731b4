package frames

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ports is a fixed set of per-channel buffers standing in for an engine cycle.
type ports [][]float32

func (p ports) Input(ch, nframes int) []float32  { return p[ch][:nframes] }
func (p ports) Output(ch, nframes int) []float32 { return p[ch][:nframes] }

func TestNewInterleavedRejectsBadShape(t *testing.T) {
	t.Parallel()

	for _, shape := range [][2]int{{0, 16}, {2, 0}, {-1, -1}} {
		b, err := NewInterleaved(shape[0], shape[1])
		require.ErrorIs(t, err, ErrInvalidShape)
		assert.Nil(t, b)
	}
}

func TestIndexing(t *testing.T) {
	t.Parallel()

	b, err := NewInterleaved(3, 4)
	require.NoError(t, err)
	assert.Len(t, b.Samples(), 12)

	b.Set(2, 1, 0.5)
	assert.InDelta(t, 0.5, b.At(2, 1), 0)
	assert.Equal(t, []float32{0, 0.5, 0}, b.Frame(2))
	assert.Len(t, b.Frames(10), 12, "frames clamp to capacity")
	assert.Empty(t, b.Frames(-1))

	assert.Panics(t, func() { b.At(0, 3) })
	assert.Panics(t, func() { b.Set(4, 0, 1) })
}

func TestZeroFrom(t *testing.T) {
	t.Parallel()

	b, err := NewInterleaved(2, 4)
	require.NoError(t, err)
	for i := range b.Samples() {
		b.Samples()[i] = 1
	}
	b.ZeroFrom(1, 3)
	assert.Equal(t, []float32{1, 1, 0, 0, 0, 0, 1, 1}, b.Samples())

	b.ZeroFrom(3, 1)
	b.ZeroFrom(3, 99)
	assert.Equal(t, []float32{1, 1, 0, 0, 0, 0, 0, 0}, b.Samples())
}

func TestInterleaveDeinterleave(t *testing.T) {
	t.Parallel()

	in := ports{
		{1, 2, 3, 4},
		{-1, -2, -3, -4},
	}
	b, err := NewInterleaved(2, 2)
	require.NoError(t, err)

	// second half of a 4-frame cycle through a 2-frame staging buffer
	assert.Equal(t, 2, b.Interleave(in, 4, 2, 2))
	assert.Equal(t, []float32{3, -3, 4, -4}, b.Samples())

	out := ports{make([]float32, 4), make([]float32, 4)}
	assert.Equal(t, 2, b.Deinterleave(out, 4, 2, 2))
	assert.Equal(t, []float32{0, 0, 3, 4}, out[0])
	assert.Equal(t, []float32{0, 0, -3, -4}, out[1])
}

func TestInterleaveShortPortIsSilent(t *testing.T) {
	t.Parallel()

	b, err := NewInterleaved(1, 4)
	require.NoError(t, err)
	b.Samples()[3] = 9

	short := ports{{0.25, 0.5}}
	b.Interleave(short, 2, 0, 4)
	assert.Equal(t, []float32{0.25, 0.5, 0, 0}, b.Samples())
}

func TestPeak(t *testing.T) {
	t.Parallel()

	b, err := NewInterleaved(2, 3)
	require.NoError(t, err)
	copy(b.Samples(), []float32{0.1, -0.7, 0.3, 0.2, 0.9, -1})
	assert.InDelta(t, 0.7, b.Peak(2), 1e-6)
	assert.InDelta(t, 1.0, b.Peak(3), 1e-6)
}

func TestGainConversions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		db     float64
		linear float64
	}{
		{0, 1},
		{20, 10},
		{-20, 0.1},
		{-6.0206, 0.5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.linear, DBToLinear(tt.db), 1e-4, "DBToLinear(%v)", tt.db)
		assert.InDelta(t, tt.db, LinearToDB(tt.linear), 1e-3, "LinearToDB(%v)", tt.linear)
	}
	assert.True(t, math.IsInf(LinearToDB(0), -1))
}

func TestApplyGain(t *testing.T) {
	t.Parallel()

	src := []float32{1, -0.5, 0.25}
	dst := make([]float32, 2)
	assert.Equal(t, 2, ApplyGain(dst, src, 2))
	assert.Equal(t, []float32{2, -1}, dst)

	assert.Equal(t, 2, ApplyGain(dst, src, 1))
	assert.Equal(t, []float32{1, -0.5}, dst)
}

func TestHotPathDoesNotAllocate(t *testing.T) {
	b, err := NewInterleaved(4, 256)
	require.NoError(t, err)
	p := ports{make([]float32, 256), make([]float32, 256), make([]float32, 256), make([]float32, 256)}
	// convert once, as an engine hands out a long-lived Buffers value
	var in InputPorts = p
	var out OutputPorts = p

	allocs := testing.AllocsPerRun(100, func() {
		b.Interleave(in, 256, 0, 256)
		b.Deinterleave(out, 256, 0, 256)
		b.ZeroFrom(128, 256)
		_ = b.Peak(256)
	})
	assert.Zero(t, allocs)
}
