package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"out_01", "out_02", "out_03"}, PortNames("out", 3))
	assert.Equal(t, "in_12", PortNames("in", 12)[11])
	assert.Empty(t, PortNames("in", 0))
}

func TestPortBuffersBounds(t *testing.T) {
	t.Parallel()

	p := NewPortBuffers(1, 2, 8)
	assert.Len(t, p.Input(0, 4), 4)
	assert.Len(t, p.Input(0, 100), 8, "clamped to capacity")
	assert.Empty(t, p.Input(0, -1))
	assert.Nil(t, p.Input(1, 4))
	assert.Nil(t, p.Output(-1, 4))
	assert.Len(t, p.Output(1, 8), 8)

	out := p.Output(1, 8)
	for i := range out {
		out[i] = 1
	}
	p.ClearOutputs(4)
	assert.Equal(t, []float32{0, 0, 0, 0, 1, 1, 1, 1}, out)
}

func TestNullRequiresSetup(t *testing.T) {
	t.Parallel()

	n := NewNull(NullConfig{Manual: true})
	assert.ErrorIs(t, n.Activate(), ErrNoProcessCallback)

	require.NoError(t, n.SetProcessCallback(func(int, Buffers) {}))
	assert.ErrorIs(t, n.Activate(), ErrNoPorts)
	assert.ErrorIs(t, n.RegisterPorts(nil, nil), ErrNoPorts)

	require.NoError(t, n.RegisterPorts(nil, PortNames("out", 2)))
	require.NoError(t, n.Activate())
	assert.ErrorIs(t, n.RegisterPorts(nil, PortNames("out", 1)), ErrActive)
	assert.ErrorIs(t, n.SetProcessCallback(nil), ErrActive)

	require.NoError(t, n.Close())
	assert.ErrorIs(t, n.Activate(), ErrClosed)
}

func TestNullManualCycle(t *testing.T) {
	t.Parallel()

	n := NewNull(NullConfig{SampleRate: 8000, BufferSize: 4, Manual: true})
	require.NoError(t, n.RegisterPorts(PortNames("in", 2), PortNames("out", 2)))

	// pass-through with the channel index added
	require.NoError(t, n.SetProcessCallback(func(nframes int, bufs Buffers) {
		for ch := range 2 {
			in := bufs.Input(ch, nframes)
			out := bufs.Output(ch, nframes)
			for i := range in {
				out[i] = in[i] + float32(ch)
			}
		}
	}))
	n.SetInputGenerator(func(ch int, dst []float32) {
		for i := range dst {
			dst[i] = float32(i)
		}
	})
	captured := make([][]float32, 2)
	n.SetOutputTap(func(ch int, src []float32) {
		captured[ch] = append(captured[ch], src...)
	})

	n.Cycle(3)
	assert.Zero(t, n.Cycles(), "inactive engine does not cycle")

	require.NoError(t, n.Activate())
	n.Cycle(3)
	n.Cycle(100)

	assert.Equal(t, uint64(2), n.Cycles())
	assert.Equal(t, []float32{0, 1, 2, 0, 1, 2, 3}, captured[0])
	assert.Equal(t, []float32{1, 2, 3, 1, 2, 3, 4}, captured[1])
	require.NoError(t, n.Close())
}

func TestNullClockDrivesCallback(t *testing.T) {
	t.Parallel()

	// 64 frames at 64 kHz is a 1ms period
	n := NewNull(NullConfig{SampleRate: 64000, BufferSize: 64})
	require.NoError(t, n.RegisterPorts(nil, PortNames("out", 1)))

	var frames atomic.Int64
	require.NoError(t, n.SetProcessCallback(func(nframes int, _ Buffers) {
		frames.Add(int64(nframes))
	}))
	require.NoError(t, n.Activate())

	assert.Eventually(t, func() bool { return n.Cycles() >= 5 }, 2*time.Second, time.Millisecond)
	require.NoError(t, n.Deactivate())
	require.NoError(t, n.Deactivate(), "deactivate is idempotent")

	after := n.Cycles()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, n.Cycles(), "no cycles after deactivate")
	assert.Equal(t, int64(after)*64, frames.Load())
	require.NoError(t, n.Close())
}

func TestNullShutdownNotifies(t *testing.T) {
	t.Parallel()

	n := NewNull(NullConfig{SampleRate: 64000, BufferSize: 64})
	require.NoError(t, n.RegisterPorts(PortNames("in", 1), nil))
	require.NoError(t, n.SetProcessCallback(func(int, Buffers) {}))

	var reasons []string
	n.OnShutdown(func(reason string) { reasons = append(reasons, reason) })
	n.OnShutdown(func(reason string) { reasons = append(reasons, "second:"+reason) })
	require.NoError(t, n.Activate())

	n.Shutdown("server exited")
	assert.Equal(t, []string{"server exited", "second:server exited"}, reasons)

	after := n.Cycles()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, after, n.Cycles())
	require.NoError(t, n.Close())
}

func TestNullNoCycleAfterDeactivate(t *testing.T) {
	t.Parallel()

	n := NewNull(NullConfig{BufferSize: 16, Manual: true})
	require.NoError(t, n.RegisterPorts(nil, PortNames("out", 1)))
	var stopped, late atomic.Bool
	require.NoError(t, n.SetProcessCallback(func(int, Buffers) {
		if stopped.Load() {
			late.Store(true)
		}
	}))
	require.NoError(t, n.Activate())

	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Go(func() {
		for {
			select {
			case <-quit:
				return
			default:
				n.Cycle(16)
			}
		}
	})
	require.Eventually(t, func() bool { return n.Cycles() > 10 }, 2*time.Second, time.Millisecond)

	require.NoError(t, n.Deactivate())
	stopped.Store(true)
	after := n.Cycles()
	for range 100 {
		n.Cycle(16)
	}
	close(quit)
	wg.Wait()

	assert.False(t, late.Load(), "callback ran after Deactivate returned")
	assert.Equal(t, after, n.Cycles())
	assert.Equal(t, []string{"out_01"}, n.Outputs())
	assert.Empty(t, n.Inputs())
	require.NoError(t, n.Close())
}
