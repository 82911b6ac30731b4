package stream

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/playrec/internal/audiofile"
	"github.com/tphakala/playrec/internal/engine"
	"github.com/tphakala/playrec/internal/errors"
)

func TestModeAndStateStrings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"playback", Playback, false},
		{"play", Playback, false},
		{" Record ", Record, false},
		{"rec", Record, false},
		{"duplex", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "playback", Playback.String())
	assert.Equal(t, "record", Record.String())
	assert.Equal(t, "unknown", Mode(0).String())
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "shutting_down", StateShuttingDown.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestConfigureValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		src     audiofile.Source
		sink    audiofile.Sink
		wantErr error
	}{
		{"unknown mode", Config{}, rampSource(8, 1), nil, ErrInvalidMode},
		{"playback without source", Config{Mode: Playback}, nil, nil, ErrMissingFile},
		{"record without sink", Config{Mode: Record, Channels: 2}, nil, nil, ErrMissingFile},
		{"record without channels", Config{Mode: Record}, nil, audiofile.NewMemorySink(2, 48000, 0), ErrInvalidChannels},
		{"record channel mismatch", Config{Mode: Record, Channels: 1}, nil, audiofile.NewMemorySink(2, 48000, 0), ErrInvalidChannels},
		{"too many channels", Config{Mode: Record, Channels: 1025}, nil, audiofile.NewMemorySink(1025, 48000, 0), ErrInvalidChannels},
		{"playback channel mismatch", Config{Mode: Playback, Channels: 4}, rampSource(8, 2), nil, ErrInvalidChannels},
		{"no sample rate", Config{Mode: Record, Channels: 1}, nil, audiofile.NewMemorySink(1, 0, 0), ErrInvalidSampleRate},
		{"capacity too large", Config{Mode: Playback, CapacityFrames: MaxCapacityFrames + 1}, rampSource(8, 1), nil, ErrCapacityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := NewSession(nil)
			err := s.Configure(tt.cfg, tt.src, tt.sink)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, StateIdle, s.State())
		})
	}
}

func TestConfigureRoundsCapacity(t *testing.T) {
	t.Parallel()

	s := NewSession(nil, WithID("test-session"))
	require.NoError(t, s.Configure(Config{Mode: Playback, CapacityFrames: 1000, StagingFrames: 4096}, rampSource(10, 2), nil))

	st := s.Stats()
	assert.Equal(t, StateConfigured, st.State)
	assert.Equal(t, Playback, st.Mode)
	assert.Equal(t, 2, st.Channels)
	assert.Equal(t, 48000, st.SampleRate)
	assert.Equal(t, 1024, st.RingCapacity)
	assert.Zero(t, st.RingFill)
	assert.Equal(t, "test-session", s.ID())

	err := s.Configure(Config{Mode: Playback}, rampSource(10, 2), nil)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	require.NoError(t, s.Stop())
	assert.Equal(t, StateClosed, s.State())
}

func TestSessionIDsAreUnique(t *testing.T) {
	t.Parallel()
	assert.NotEqual(t, NewSession(nil).ID(), NewSession(nil).ID())
}

func TestStartRequiresConfigure(t *testing.T) {
	t.Parallel()

	s := NewSession(nil)
	err := s.Start(t.Context(), engine.NewNull(engine.NullConfig{Manual: true}))
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, s.Stop())
	assert.Equal(t, StateClosed, s.State())
	require.NoError(t, s.Wait())

	err = s.Start(t.Context(), engine.NewNull(engine.NullConfig{Manual: true}))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestPlaybackSessionLifecycle(t *testing.T) {
	t.Parallel()

	src := rampSource(1000, 2)
	s := NewSession(nil)
	require.NoError(t, s.Configure(Config{Mode: Playback, CapacityFrames: 1024, StagingFrames: 128}, src, nil))

	eng := engine.NewNull(engine.NullConfig{Manual: true, BufferSize: 256, SampleRate: 48000})
	var left []float32
	eng.SetOutputTap(func(ch int, out []float32) {
		if ch == 0 {
			left = append(left, out...)
		}
	})

	require.NoError(t, s.Start(t.Context(), eng))
	assert.Equal(t, StateStreaming, s.State())
	assert.Equal(t, []string{"out_01", "out_02"}, eng.Outputs())
	assert.Empty(t, eng.Inputs())

	eng.Cycle(256)
	require.Len(t, left, 256)
	for i, v := range left {
		assert.InDelta(t, float32(2*i), v, 0, "frame %d", i)
	}

	st := s.Stats()
	assert.Equal(t, uint64(1), st.Cycles)
	assert.Equal(t, uint64(256), st.Frames)
	assert.Zero(t, st.Underflows)

	require.NoError(t, s.Stop())
	assert.Equal(t, StateClosed, s.State())
	assert.True(t, src.Closed())
	assert.Zero(t, s.Stats().RingFill, "ring released")
	require.NoError(t, s.Stop(), "stop is idempotent")
	require.NoError(t, s.Wait())

	// the engine is deactivated, further cycles are ignored
	eng.Cycle(256)
	assert.Len(t, left, 256)
}

func TestPlaybackPrefillsBeforeActivation(t *testing.T) {
	t.Parallel()

	s := NewSession(nil)
	require.NoError(t, s.Configure(Config{Mode: Playback, CapacityFrames: 512, PollInterval: time.Hour}, rampSource(100, 1), nil))

	eng := engine.NewNull(engine.NullConfig{Manual: true, BufferSize: 128})
	require.NoError(t, s.Start(t.Context(), eng))
	t.Cleanup(func() { _ = s.Stop() })

	assert.Equal(t, 512, s.Stats().RingFill)
	assert.Positive(t, s.Stats().Rewinds)
}

type failingEngine struct {
	*engine.Null
	err error
}

func (f *failingEngine) Activate() error { return f.err }

func TestStartRollsBackWhenActivationFails(t *testing.T) {
	t.Parallel()

	src := rampSource(100, 1)
	s := NewSession(nil)
	require.NoError(t, s.Configure(Config{Mode: Playback, CapacityFrames: 256}, src, nil))

	bad := &failingEngine{
		Null: engine.NewNull(engine.NullConfig{Manual: true}),
		err:  errors.NewStd("device busy"),
	}
	err := s.Start(t.Context(), bad)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAudioEngine))
	assert.Equal(t, StateConfigured, s.State())
	assert.False(t, src.Closed())

	// a rolled back session can start again
	good := engine.NewNull(engine.NullConfig{Manual: true, BufferSize: 64})
	require.NoError(t, s.Start(t.Context(), good))
	good.Cycle(64)
	assert.Equal(t, uint64(1), s.Stats().Cycles)
	require.NoError(t, s.Stop())
}

func TestStartFailsOnEmptySource(t *testing.T) {
	t.Parallel()

	s := NewSession(nil)
	require.NoError(t, s.Configure(Config{Mode: Playback, CapacityFrames: 64},
		audiofile.NewMemorySource(nil, 1, 48000), nil))

	err := s.Start(t.Context(), engine.NewNull(engine.NullConfig{Manual: true}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptySource)
	assert.True(t, errors.IsCategory(err, errors.CategoryAudioSource))
	assert.Equal(t, StateConfigured, s.State())

	var ee *errors.EnhancedError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "prefill", ee.GetContext()["operation"])
	assert.Contains(t, ee.GetContext(), "duration_ms")
	require.NoError(t, s.Stop())
}

func TestRecordSessionDrainsOnStop(t *testing.T) {
	t.Parallel()

	sink := audiofile.NewMemorySink(2, 48000, 0)
	s := NewSession(nil)
	require.NoError(t, s.Configure(Config{
		Mode:         Record,
		Channels:     2,
		PollInterval: time.Hour,
	}, nil, sink))

	eng := engine.NewNull(engine.NullConfig{Manual: true, BufferSize: 128})
	eng.SetInputGenerator(func(ch int, dst []float32) {
		for i := range dst {
			dst[i] = float32(ch + 1)
		}
	})
	require.NoError(t, s.Start(t.Context(), eng))
	assert.Equal(t, []string{"in_01", "in_02"}, eng.Inputs())

	for range 4 {
		eng.Cycle(128)
	}
	require.NoError(t, s.Stop())

	got := sink.Samples()
	require.Len(t, got, 2*512)
	for i := 0; i < len(got); i += 2 {
		assert.InDelta(t, 1.0, got[i], 0)
		assert.InDelta(t, 2.0, got[i+1], 0)
	}
	assert.True(t, sink.Closed())
	assert.Zero(t, s.Stats().Overflows)
}

func TestRecordSessionCountsOverflow(t *testing.T) {
	t.Parallel()

	sink := audiofile.NewMemorySink(1, 48000, 0)
	s := NewSession(nil)
	require.NoError(t, s.Configure(Config{
		Mode:           Record,
		Channels:       1,
		CapacityFrames: 64,
		PollInterval:   time.Hour,
	}, nil, sink))

	eng := engine.NewNull(engine.NullConfig{Manual: true, BufferSize: 64})
	require.NoError(t, s.Start(t.Context(), eng))

	// the worker drains at most a few passes before parking for an hour
	require.Eventually(t, func() bool {
		eng.Cycle(64)
		return s.Stats().Overflows > 0
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, 64, s.Stats().RingFill)

	require.NoError(t, s.Stop())
	assert.GreaterOrEqual(t, sink.Frames(), 64)
	assert.Zero(t, sink.Frames()%64, "frames are dropped per cycle, never torn")
}

func TestEngineShutdownStopsSession(t *testing.T) {
	t.Parallel()

	s := NewSession(nil)
	require.NoError(t, s.Configure(Config{Mode: Playback}, rampSource(100, 1), nil))

	eng := engine.NewNull(engine.NullConfig{Manual: true})
	require.NoError(t, s.Start(t.Context(), eng))

	eng.Shutdown("server exited")

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop after engine shutdown")
	}
	assert.Equal(t, StateClosed, s.State())
	require.NoError(t, s.Wait())
}

func TestContextCancelStopsSession(t *testing.T) {
	t.Parallel()

	s := NewSession(nil)
	require.NoError(t, s.Configure(Config{Mode: Playback}, rampSource(100, 1), nil))

	ctx, cancel := context.WithCancel(t.Context())
	require.NoError(t, s.Start(ctx, engine.NewNull(engine.NullConfig{})))
	cancel()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop after cancellation")
	}
	assert.Equal(t, StateClosed, s.State())
}

func TestOncePlaybackEndsSession(t *testing.T) {
	t.Parallel()

	s := NewSession(nil)
	require.NoError(t, s.Configure(Config{
		Mode:           Playback,
		CapacityFrames: 128,
		NoLoop:         true,
		PollInterval:   time.Millisecond,
	}, rampSource(300, 1), nil))

	eng := engine.NewNull(engine.NullConfig{Manual: true, BufferSize: 64})
	var played int
	eng.SetOutputTap(func(_ int, out []float32) {
		for _, v := range out {
			if v != 0 {
				played++
			}
		}
	})
	require.NoError(t, s.Start(t.Context(), eng))

	require.Eventually(t, func() bool {
		eng.Cycle(64)
		return s.State() == StateClosed
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, s.Wait())
	assert.Zero(t, s.Stats().Rewinds)
	// frame 0 is silent by construction
	assert.Equal(t, 299, played)
}

func TestWorkerFailureSurfacesThroughWait(t *testing.T) {
	t.Parallel()

	// one frame fits the prefill, the rewind after it then yields nothing
	src := &vanishingSource{MemorySource: rampSource(1, 1)}
	s := NewSession(nil)
	require.NoError(t, s.Configure(Config{Mode: Playback, CapacityFrames: 1, StagingFrames: 1, PollInterval: time.Millisecond}, src, nil))

	eng := engine.NewNull(engine.NullConfig{Manual: true, BufferSize: 1})
	require.NoError(t, s.Start(t.Context(), eng))

	src.vanish.Store(true)
	require.Eventually(t, func() bool {
		eng.Cycle(1)
		return s.State() == StateClosed
	}, 5*time.Second, time.Millisecond)

	assert.ErrorIs(t, s.Wait(), ErrEmptySource)
}

// vanishingSource behaves like an empty file once vanish is set.
type vanishingSource struct {
	*audiofile.MemorySource
	vanish atomic.Bool
}

func (v *vanishingSource) ReadFrames(dst []float32, count int) (int, error) {
	if v.vanish.Load() {
		return 0, nil
	}
	return v.MemorySource.ReadFrames(dst, count)
}

func TestXrunHookReportsUnderflows(t *testing.T) {
	t.Parallel()

	var reported atomic.Uint64
	s := NewSession(nil, WithXrunHook(func(st Stats) {
		reported.Store(st.Underflows)
	}))
	require.NoError(t, s.Configure(Config{
		Mode:               Playback,
		CapacityFrames:     16,
		PollInterval:       time.Hour,
		XrunReportInterval: 5 * time.Millisecond,
	}, rampSource(16, 1), nil))

	eng := engine.NewNull(engine.NullConfig{Manual: true, BufferSize: 64})
	require.NoError(t, s.Start(t.Context(), eng))
	t.Cleanup(func() { _ = s.Stop() })

	eng.Cycle(64)
	require.Eventually(t, func() bool { return reported.Load() == 1 }, 5*time.Second, time.Millisecond)
}

func TestXrunHookReportsOverflowsFromFirstCycle(t *testing.T) {
	t.Parallel()

	var reported atomic.Uint64
	s := NewSession(nil, WithXrunHook(func(st Stats) {
		reported.Store(st.Overflows)
	}))
	sink := audiofile.NewMemorySink(1, 48000, 0)
	require.NoError(t, s.Configure(Config{
		Mode:               Record,
		Channels:           1,
		SampleRate:         48000,
		CapacityFrames:     16,
		PollInterval:       time.Hour,
		XrunReportInterval: 5 * time.Millisecond,
	}, nil, sink))

	eng := engine.NewNull(engine.NullConfig{Manual: true, SampleRate: 48000, BufferSize: 64})
	require.NoError(t, s.Start(t.Context(), eng))
	t.Cleanup(func() { _ = s.Stop() })

	// the first cycle overruns the ring before the monitor has ticked once
	eng.Cycle(64)
	require.Eventually(t, func() bool { return reported.Load() >= 1 }, 5*time.Second, time.Millisecond)
}
