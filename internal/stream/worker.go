package stream

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/playrec/internal/audiofile"
	"github.com/tphakala/playrec/internal/errors"
	"github.com/tphakala/playrec/internal/frames"
	"github.com/tphakala/playrec/internal/logger"
	"github.com/tphakala/playrec/internal/ringbuffer"
)

// Worker defaults.
const (
	DefaultPollInterval = 5 * time.Millisecond
	DefaultWarnInterval = time.Second
)

// ErrEmptySource is returned when a source yields nothing right after being rewound,
// which would otherwise spin the playback loop forever.
var ErrEmptySource = errors.NewStd("audio source produced no frames after rewind")

// WorkerOptions tune a Worker. Zero values select the defaults.
type WorkerOptions struct {
	// PollInterval is how long an idle worker sleeps before checking the ring again.
	// It bounds the shutdown latency.
	PollInterval time.Duration
	// NoLoop ends playback at the end of the source instead of rewinding.
	NoLoop bool
	// WarnInterval is the minimum spacing of repeated I/O warnings.
	WarnInterval time.Duration
	Logger       logger.Logger
}

// Worker moves audio between a file and the ring on a regular goroutine. In playback
// mode it is the ring's only producer, in record mode its only consumer.
type Worker struct {
	mode     Mode
	ring     *ringbuffer.Ring
	staging  *frames.Interleaved
	src      audiofile.Source
	sink     audiofile.Sink
	counters *Counters
	opts     WorkerOptions
	log      logger.Logger

	warnLimiter *rate.Limiter
	suppressed  int

	// playback without looping reached the end of the source
	exhausted bool

	stop     chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a worker. Playback workers need src, record workers need sink.
func NewWorker(mode Mode, ring *ringbuffer.Ring, staging *frames.Interleaved, src audiofile.Source, sink audiofile.Sink, counters *Counters, opts WorkerOptions) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.WarnInterval <= 0 {
		opts.WarnInterval = DefaultWarnInterval
	}
	if opts.Logger == nil {
		opts.Logger = GetLogger()
	}
	if counters == nil {
		counters = &Counters{}
	}
	return &Worker{
		mode:        mode,
		ring:        ring,
		staging:     staging,
		src:         src,
		sink:        sink,
		counters:    counters,
		opts:        opts,
		log:         opts.Logger.Module("worker"),
		warnLimiter: rate.NewLimiter(rate.Every(opts.WarnInterval), 1),
		stop:        make(chan struct{}),
	}
}

// Exhausted reports whether a non-looping playback worker has consumed its whole source.
func (w *Worker) Exhausted() bool { return w.exhausted }

// warn logs an I/O anomaly unless one was logged within the warn interval.
func (w *Worker) warn(msg string, fields ...logger.Field) {
	if !w.warnLimiter.Allow() {
		w.suppressed++
		return
	}
	if w.suppressed > 0 {
		fields = append(fields, logger.Int("suppressed", w.suppressed))
		w.suppressed = 0
	}
	w.log.Warn(msg, fields...)
}

// Fill tops the ring up from the source and returns the number of frames written.
// At the end of the source it rewinds, so playback loops without a gap.
func (w *Worker) Fill() (int, error) {
	total := 0
	for !w.exhausted {
		avail := w.ring.AvailableToWrite()
		if avail == 0 {
			break
		}
		got, err := w.readSource(min(avail, w.staging.Capacity()))
		if err != nil {
			return total, err
		}
		if got == 0 {
			break
		}
		total += w.ring.Write(w.staging.Samples(), got)
	}
	return total, nil
}

// readSource reads want frames into the staging buffer, rewinding once on a short read.
func (w *Worker) readSource(want int) (int, error) {
	buf := w.staging.Samples()
	ch := w.staging.Channels()

	n, err := w.src.ReadFrames(buf, want)
	if err != nil {
		w.counters.IOErrors.Add(1)
		w.warn("audio file read failed", logger.Error(err), logger.Int("frames_read", n))
		return n, nil
	}
	if n == want {
		return n, nil
	}

	if w.opts.NoLoop {
		w.exhausted = true
		w.log.Info("end of audio file reached")
		return n, nil
	}

	if err := w.src.Rewind(); err != nil {
		w.counters.IOErrors.Add(1)
		w.warn("audio file rewind failed", logger.Error(err))
		return n, nil
	}
	w.counters.Rewinds.Add(1)

	m, err := w.src.ReadFrames(buf[n*ch:], want-n)
	if err != nil {
		w.counters.IOErrors.Add(1)
		w.warn("audio file read after rewind failed", logger.Error(err))
		return n + m, nil
	}
	if m == 0 {
		return n, errors.New(ErrEmptySource).
			Component("stream").
			Category(errors.CategoryAudioSource).
			Context("frames_before_rewind", n).
			Build()
	}
	return n + m, nil
}

// Drain empties the ring into the sink and returns the number of frames taken from the
// ring. Short or failed writes are counted and logged but do not stop the drain.
func (w *Worker) Drain() (int, error) {
	total := 0
	for {
		avail := w.ring.AvailableToRead()
		if avail == 0 {
			break
		}
		n := w.ring.Read(w.staging.Samples(), min(avail, w.staging.Capacity()))
		written, err := w.sink.WriteFrames(w.staging.Samples(), n)
		switch {
		case err != nil:
			w.counters.IOErrors.Add(1)
			w.warn("audio file write failed", logger.Error(err), logger.Int("frames", n))
		case written < n:
			w.counters.ShortWrites.Add(1)
			w.warn("short write to audio file",
				logger.Int("requested", n),
				logger.Int("written", written))
		}
		total += n
	}
	return total, nil
}

// RunOnce performs a single fill or drain pass depending on the mode.
func (w *Worker) RunOnce() (int, error) {
	if w.mode == Playback {
		return w.Fill()
	}
	return w.Drain()
}

// Stop asks Run to return. It is safe to call more than once and from any goroutine.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Run repeats RunOnce until Stop is called, ctx is done or a fatal error occurs. An idle
// pass sleeps for the poll interval. A record worker drains the ring one last time
// before returning so nothing captured is lost. A non-looping playback worker returns
// once the source is exhausted and the ring has played out.
func (w *Worker) Run(ctx context.Context) error {
	timer := time.NewTimer(w.opts.PollInterval)
	defer timer.Stop()

	for {
		n, err := w.RunOnce()
		if err != nil {
			w.log.Error("stream worker failed", logger.Error(err))
			return err
		}

		if w.exhausted && w.ring.AvailableToRead() == 0 {
			w.log.Info("playback finished")
			return nil
		}

		if n > 0 {
			select {
			case <-w.stop:
				return w.finish()
			case <-ctx.Done():
				return w.finish()
			default:
				continue
			}
		}

		timer.Reset(w.opts.PollInterval)
		select {
		case <-w.stop:
			return w.finish()
		case <-ctx.Done():
			return w.finish()
		case <-timer.C:
		}
	}
}

func (w *Worker) finish() error {
	if w.mode != Record {
		return nil
	}
	n, err := w.Drain()
	if n > 0 {
		w.log.Debug("final drain", logger.Int("frames", n))
	}
	return err
}
