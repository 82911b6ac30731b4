package diagnostics

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/playrec/internal/logger"
	"github.com/tphakala/playrec/internal/stream"
)

// Default XrunWatcher tuning.
const (
	DefaultBurstThreshold = 10
	DefaultCaptureEvery   = time.Minute
)

// WatcherOptions configure an XrunWatcher.
type WatcherOptions struct {
	// BurstThreshold is the number of new xruns between two observations that counts
	// as a burst.
	BurstThreshold uint64
	// CaptureEvery limits how often a burst triggers a snapshot.
	CaptureEvery time.Duration
	// ReportDir receives a text report for each captured snapshot when set.
	ReportDir string
	// OnBurst is called after each captured snapshot.
	OnBurst func(stream.Stats, *Snapshot)
	Logger  logger.Logger
}

// XrunWatcher turns periodic session statistics into host snapshots when xruns arrive
// in bursts. Observe is meant to be installed with stream.WithXrunHook.
type XrunWatcher struct {
	opts    WatcherOptions
	limiter *rate.Limiter
	log     logger.Logger

	mu    sync.Mutex
	last  uint64
	ctx   context.Context
	stop  context.CancelFunc
	wg    sync.WaitGroup
	count int
}

// NewXrunWatcher creates a watcher. Zero options select the defaults.
func NewXrunWatcher(opts WatcherOptions) *XrunWatcher {
	if opts.BurstThreshold == 0 {
		opts.BurstThreshold = DefaultBurstThreshold
	}
	if opts.CaptureEvery <= 0 {
		opts.CaptureEvery = DefaultCaptureEvery
	}
	log := opts.Logger
	if log == nil {
		log = GetLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &XrunWatcher{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.CaptureEvery), 1),
		log:     log,
		ctx:     ctx,
		stop:    cancel,
	}
}

// Observe records a statistics sample. When the xrun count grew by at least the burst
// threshold since the previous sample a snapshot is captured in the background.
func (w *XrunWatcher) Observe(st stream.Stats) {
	xruns := st.Underflows + st.Overflows

	w.mu.Lock()
	defer w.mu.Unlock()

	delta := xruns - w.last
	if xruns < w.last {
		// counters restarted with a new session
		delta = xruns
	}
	w.last = xruns

	if delta < w.opts.BurstThreshold || w.ctx.Err() != nil || !w.limiter.Allow() {
		return
	}

	w.count++
	w.wg.Go(func() {
		snap := Capture(w.ctx, "xrun burst")
		fields := append([]logger.Field{
			logger.Uint64("xruns", delta),
			logger.String("mode", st.Mode.String()),
			logger.Int("ring_fill", st.RingFill),
		}, snap.Fields()...)
		w.log.Warn("xrun burst detected", fields...)

		if w.opts.ReportDir != "" {
			if path, err := WriteReport(w.opts.ReportDir, &snap); err != nil {
				w.log.Error("failed to write diagnostics report", logger.Error(err))
			} else {
				w.log.Info("diagnostics report written", logger.String("path", path))
			}
		}
		if w.opts.OnBurst != nil {
			w.opts.OnBurst(st, &snap)
		}
	})
}

// Captures returns the number of snapshots triggered so far.
func (w *XrunWatcher) Captures() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close cancels pending captures and waits for them to finish.
func (w *XrunWatcher) Close() {
	w.mu.Lock()
	w.stop()
	w.mu.Unlock()
	w.wg.Wait()
}
