// Package stream connects an audio file to a realtime engine through a lock-free ring.
//
// A Session owns the ring, its backing memory and two staging buffers. The engine's
// realtime thread runs the Callback, which only touches the ring and counters. A Worker
// goroutine moves frames between the ring and the file. The session walks through
// Idle, Configured, Streaming, ShuttingDown and Closed, and releases the ring only once
// both sides have stopped.
package stream

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/playrec/internal/audiofile"
	"github.com/tphakala/playrec/internal/engine"
	"github.com/tphakala/playrec/internal/errors"
	"github.com/tphakala/playrec/internal/frames"
	"github.com/tphakala/playrec/internal/logger"
	"github.com/tphakala/playrec/internal/ringbuffer"
)

// Session defaults.
const (
	DefaultCapacityFrames     = 65536
	DefaultStagingFrames      = 4096
	DefaultXrunReportInterval = time.Second

	// MaxCapacityFrames bounds the ring so channels x capacity stays addressable.
	MaxCapacityFrames = 1 << 24
)

var (
	ErrInvalidState      = errors.NewStd("operation not valid in current session state")
	ErrInvalidMode       = errors.NewStd("invalid stream mode")
	ErrInvalidChannels   = errors.NewStd("channel count must be between 1 and 1024")
	ErrInvalidSampleRate = errors.NewStd("sample rate must be positive")
	ErrMissingFile       = errors.NewStd("no audio file for stream mode")
	ErrCapacityTooLarge  = errors.NewStd("ring capacity too large")
)

// GetLogger returns the stream logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("stream")
}

// Mode is the streaming direction.
type Mode int

const (
	// Playback streams a file to the engine's output ports.
	Playback Mode = iota + 1
	// Record streams the engine's input ports to a file.
	Record
)

func (m Mode) String() string {
	switch m {
	case Playback:
		return "playback"
	case Record:
		return "record"
	default:
		return "unknown"
	}
}

// ParseMode parses "playback"/"play" or "record"/"rec".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "playback", "play":
		return Playback, nil
	case "record", "rec":
		return Record, nil
	}
	return 0, errors.New(ErrInvalidMode).
		Component("stream").
		Category(errors.CategoryValidation).
		Context("mode", s).
		Build()
}

// State is a session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConfigured
	StateStreaming
	StateShuttingDown
	StateClosed
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateConfigured:   "configured",
	StateStreaming:    "streaming",
	StateShuttingDown: "shutting_down",
	StateClosed:       "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Config describes a stream. Zero values select defaults; Channels and SampleRate are
// taken from the audio file when left at zero, except that recording needs Channels.
type Config struct {
	Mode       Mode
	Channels   int
	SampleRate int
	// CapacityFrames is a ring size hint, rounded up to a power of two.
	CapacityFrames int
	// StagingFrames sizes the worker and callback scratch buffers.
	StagingFrames      int
	PollInterval       time.Duration
	NoLoop             bool
	WarnInterval       time.Duration
	XrunReportInterval time.Duration
}

// Option configures a Session.
type Option func(*Session)

// WithID overrides the generated session ID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithXrunHook registers fn to be called from the xrun monitor whenever new underflows
// or overflows were counted in the last report interval.
func WithXrunHook(fn func(Stats)) Option {
	return func(s *Session) { s.xrunHook = fn }
}

// Session is one playback or record stream.
type Session struct {
	id       string
	log      logger.Logger
	xrunHook func(Stats)

	// serialises lifecycle transitions
	mu    sync.Mutex
	state atomic.Int32

	// read lock-free by Stats
	cfg  atomic.Pointer[Config]
	ring atomic.Pointer[ringbuffer.Ring]

	counters Counters
	src      audiofile.Source
	sink     audiofile.Sink
	backing  []float32
	staging  *frames.Interleaved // worker side
	cbBuf    *frames.Interleaved // callback side
	worker   *Worker
	callback *Callback

	eng        engine.Engine
	cancel     context.CancelFunc
	group      *errgroup.Group
	shutdownCh chan string
	closed     chan struct{}
	workerErr  error
}

// NewSession returns an idle session logging through log (the stream logger if nil).
func NewSession(log logger.Logger, opts ...Option) *Session {
	if log == nil {
		log = GetLogger()
	}
	s := &Session{
		shutdownCh: make(chan string, 1),
		closed:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.New().String()
	}
	s.log = log.With(logger.String("session_id", s.id))
	return s
}

func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	s.log.Debug("session state changed",
		logger.String("from", old.String()),
		logger.String("to", st.String()))
}

func (s *Session) stateError(op string, want State) error {
	return errors.New(ErrInvalidState).
		Component("stream").
		Category(errors.CategoryState).
		Context("operation", op).
		Context("state", s.State().String()).
		Context("required_state", want.String()).
		Build()
}

func configError(err error, key string, value any) error {
	return errors.New(err).
		Component("stream").
		Category(errors.CategoryConfiguration).
		Context(key, value).
		Build()
}

// Configure validates cfg against the audio file, allocates the ring and staging buffers
// and builds the worker and callback. Playback needs src, record needs sink. On success the
// session owns the file and closes it in Stop.
func (s *Session) Configure(cfg Config, src audiofile.Source, sink audiofile.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateIdle {
		return s.stateError("configure", StateIdle)
	}

	switch cfg.Mode {
	case Playback:
		if src == nil {
			return configError(ErrMissingFile, "mode", cfg.Mode.String())
		}
		if cfg.Channels != 0 && cfg.Channels != src.Channels() {
			return configError(ErrInvalidChannels, "channels", cfg.Channels)
		}
		cfg.Channels = src.Channels()
		if cfg.SampleRate == 0 {
			cfg.SampleRate = src.SampleRate()
		}
	case Record:
		if sink == nil {
			return configError(ErrMissingFile, "mode", cfg.Mode.String())
		}
		if cfg.Channels != sink.Channels() {
			return configError(ErrInvalidChannels, "channels", cfg.Channels)
		}
		if cfg.SampleRate == 0 {
			cfg.SampleRate = sink.SampleRate()
		}
	default:
		return configError(ErrInvalidMode, "mode", int(cfg.Mode))
	}

	if cfg.Channels < 1 || cfg.Channels > ringbuffer.MaxChannels {
		return configError(ErrInvalidChannels, "channels", cfg.Channels)
	}
	if cfg.SampleRate <= 0 {
		return configError(ErrInvalidSampleRate, "sample_rate", cfg.SampleRate)
	}

	if cfg.CapacityFrames <= 0 {
		cfg.CapacityFrames = DefaultCapacityFrames
	}
	if cfg.CapacityFrames > MaxCapacityFrames {
		return errors.New(ErrCapacityTooLarge).
			Component("stream").
			Category(errors.CategoryResource).
			Context("capacity_frames", cfg.CapacityFrames).
			Context("max_capacity_frames", MaxCapacityFrames).
			Build()
	}
	cfg.CapacityFrames = ringbuffer.NextPowerOfTwo(cfg.CapacityFrames)
	if cfg.StagingFrames <= 0 {
		cfg.StagingFrames = DefaultStagingFrames
	}
	cfg.StagingFrames = min(cfg.StagingFrames, cfg.CapacityFrames)
	if cfg.XrunReportInterval <= 0 {
		cfg.XrunReportInterval = DefaultXrunReportInterval
	}

	backing := make([]float32, cfg.Channels*cfg.CapacityFrames)
	ring, err := ringbuffer.New(cfg.Channels, cfg.CapacityFrames, backing)
	if err != nil {
		return err
	}
	staging, err := frames.NewInterleaved(cfg.Channels, cfg.StagingFrames)
	if err != nil {
		return configError(err, "staging_frames", cfg.StagingFrames)
	}
	cbBuf, err := frames.NewInterleaved(cfg.Channels, cfg.StagingFrames)
	if err != nil {
		return configError(err, "staging_frames", cfg.StagingFrames)
	}

	s.src, s.sink = src, sink
	s.backing = backing
	s.staging = staging
	s.cbBuf = cbBuf
	s.ring.Store(ring)
	s.cfg.Store(&cfg)
	s.worker = s.newWorker(&cfg, ring)
	s.callback = NewCallback(cfg.Mode, ring, cbBuf, &s.counters)

	s.setState(StateConfigured)
	s.log.Info("stream configured",
		logger.String("mode", cfg.Mode.String()),
		logger.Int("channels", cfg.Channels),
		logger.Int("sample_rate", cfg.SampleRate),
		logger.Int("capacity_frames", cfg.CapacityFrames),
		logger.Int("staging_frames", cfg.StagingFrames),
		logger.Bool("loop", !cfg.NoLoop))
	return nil
}

func (s *Session) newWorker(cfg *Config, ring *ringbuffer.Ring) *Worker {
	return NewWorker(cfg.Mode, ring, s.staging, s.src, s.sink, &s.counters, WorkerOptions{
		PollInterval: cfg.PollInterval,
		NoLoop:       cfg.NoLoop,
		WarnInterval: cfg.WarnInterval,
		Logger:       s.log,
	})
}

// Start connects the session to eng and begins streaming. Playback pre-fills the ring
// before the engine can call back. If anything fails the session stays Configured and
// Start may be retried. Cancelling ctx stops the session.
func (s *Session) Start(ctx context.Context, eng engine.Engine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateConfigured {
		return s.stateError("start", StateConfigured)
	}
	cfg := s.cfg.Load()

	if cfg.Mode == Playback {
		began := time.Now()
		n, err := s.worker.Fill()
		if err != nil {
			return errors.New(err).
				Component("stream").
				Category(errors.CategoryAudioSource).
				Timing("prefill", time.Since(began)).
				Build()
		}
		s.log.Debug("ring pre-filled", logger.Int("frames", n))
	}

	if rate := eng.SampleRate(); rate != cfg.SampleRate {
		s.log.Warn("file sample rate differs from engine rate, audio will play at the wrong speed",
			logger.Int("file_rate", cfg.SampleRate),
			logger.Int("engine_rate", rate))
	}

	var inputs, outputs []string
	if cfg.Mode == Playback {
		outputs = engine.PortNames("out", cfg.Channels)
	} else {
		inputs = engine.PortNames("in", cfg.Channels)
	}
	if err := eng.RegisterPorts(inputs, outputs); err != nil {
		return err
	}
	if err := eng.SetProcessCallback(s.callback.Process); err != nil {
		return err
	}
	eng.OnShutdown(func(reason string) {
		select {
		case s.shutdownCh <- reason:
		default:
		}
	})

	// taken before activation so xruns from the first cycles are reported
	baseline := s.Stats()

	// the worker outlives ctx until the engine is deactivated
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(wctx)
	workerDone := make(chan struct{})
	worker := s.worker
	g.Go(func() error {
		defer close(workerDone)
		return worker.Run(gctx)
	})
	g.Go(func() error {
		s.monitor(gctx, cfg.XrunReportInterval, baseline)
		return nil
	})

	if err := eng.Activate(); err != nil {
		worker.Stop()
		cancel()
		_ = g.Wait()
		s.worker = s.newWorker(cfg, s.ring.Load())
		return errors.New(err).
			Component("stream").
			Category(errors.CategoryAudioEngine).
			Context("engine", eng.Name()).
			Context("operation", "activate").
			Build()
	}

	s.eng = eng
	s.cancel = cancel
	s.group = g
	s.setState(StateStreaming)
	s.log.Info("stream started",
		logger.String("engine", eng.Name()),
		logger.Int("engine_rate", eng.SampleRate()),
		logger.Int("buffer_size", eng.BufferSize()))

	go s.watch(ctx, workerDone)
	return nil
}

// watch stops the session when the caller cancels, the engine goes away or the worker exits.
func (s *Session) watch(ctx context.Context, workerDone <-chan struct{}) {
	select {
	case <-s.closed:
		return
	case <-ctx.Done():
		s.log.Info("stream cancelled", logger.Error(ctx.Err()))
	case reason := <-s.shutdownCh:
		s.log.Warn("audio engine shut down", logger.String("reason", reason))
	case <-workerDone:
		s.log.Debug("stream worker exited")
	}
	if err := s.Stop(); err != nil {
		s.log.Error("stream stop failed", logger.Error(err))
	}
}

// Stop ends the stream: the engine is deactivated first, then the worker is joined
// (recording drains the ring to the file), then files are closed and the ring released.
// Stop is idempotent and safe to call from any goroutine.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	switch s.State() {
	case StateShuttingDown, StateClosed:
		return nil
	case StateStreaming:
		s.setState(StateShuttingDown)
		if err := s.eng.Deactivate(); err != nil {
			errs = append(errs, err)
		}
		s.worker.Stop()
		s.cancel()
		s.workerErr = s.group.Wait()
	}

	if s.src != nil {
		if err := s.src.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	stats := s.Stats()
	s.ring.Store(nil)
	s.backing = nil
	s.staging = nil
	s.cbBuf = nil
	s.worker = nil
	s.callback = nil

	s.setState(StateClosed)
	close(s.closed)

	s.log.Info("stream stopped",
		logger.Uint64("cycles", stats.Cycles),
		logger.Uint64("frames", stats.Frames),
		logger.Uint64("underflows", stats.Underflows),
		logger.Uint64("overflows", stats.Overflows),
		logger.Uint64("io_errors", stats.IOErrors),
		logger.Uint64("short_writes", stats.ShortWrites),
		logger.Uint64("rewinds", stats.Rewinds))

	if len(errs) > 0 {
		return errors.New(errors.Join(errs...)).
			Component("stream").
			Category(errors.CategoryResource).
			Context("operation", "stop").
			Build()
	}
	return nil
}

// Done is closed once the session reaches Closed.
func (s *Session) Done() <-chan struct{} { return s.closed }

// Wait blocks until the session is closed and returns the worker's error, if any.
func (s *Session) Wait() error {
	<-s.closed
	return s.workerErr
}

// Stats returns a snapshot of the session counters. It never blocks.
func (s *Session) Stats() Stats {
	st := s.counters.snapshot()
	st.State = s.State()
	if cfg := s.cfg.Load(); cfg != nil {
		st.Mode = cfg.Mode
		st.Channels = cfg.Channels
		st.SampleRate = cfg.SampleRate
		st.RingCapacity = cfg.CapacityFrames
	}
	if ring := s.ring.Load(); ring != nil {
		st.RingFill = ring.AvailableToRead()
	}
	return st
}

// TakePeak returns the largest absolute sample seen since the previous call.
func (s *Session) TakePeak() float32 { return s.counters.TakePeak() }
