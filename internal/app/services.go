package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/playrec/internal/diagnostics"
	"github.com/tphakala/playrec/internal/logger"
	"github.com/tphakala/playrec/internal/observability"
	"github.com/tphakala/playrec/internal/rtlock"
	"github.com/tphakala/playrec/internal/stream"
)

// services are the side processes of a run: memory locking, the metrics endpoint and
// xrun diagnostics. Each is optional and driven by settings.
type services struct {
	log     logger.Logger
	metrics *observability.Metrics
	watcher *diagnostics.XrunWatcher
	group   *errgroup.Group
	cancel  context.CancelFunc
	unlock  func()
}

func (r *Runner) startServices(ctx context.Context) (*services, error) {
	svc := &services{log: r.log}

	if r.settings.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return nil, err
		}
		ep, err := observability.NewEndpoint(&r.settings.Metrics, m)
		if err != nil {
			return nil, err
		}
		svc.metrics = m

		gctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		g, gctx := errgroup.WithContext(gctx)
		g.Go(func() error { return ep.Run(gctx) })
		svc.group = g
		svc.cancel = cancel
	}

	if r.settings.Engine.Diagnostics {
		snap := diagnostics.Capture(ctx, "startup")
		r.log.Debug("system snapshot", snap.Fields()...)
		svc.watcher = diagnostics.NewXrunWatcher(diagnostics.WatcherOptions{
			Logger: diagnostics.GetLogger(),
			OnBurst: func(st stream.Stats, _ *diagnostics.Snapshot) {
				svc.recordEvent(st.Mode, "xrun_burst")
			},
		})
	}

	svc.unlock = rtlock.LockAndReport(r.settings.Engine.LockMemory, r.log)
	return svc, nil
}

// xrunHook receives the session monitor's xrun reports.
func (s *services) xrunHook(st stream.Stats) {
	s.recordEvent(st.Mode, "xrun")
	if s.watcher != nil {
		s.watcher.Observe(st)
	}
}

func (s *services) recordEvent(mode stream.Mode, event string) {
	if s.metrics != nil {
		s.metrics.Stream.RecordEvent(mode.String(), event)
	}
}

func (s *services) track(session *stream.Session, mode stream.Mode) {
	if s.metrics != nil {
		s.metrics.Stream.AddSession(session)
	}
	s.recordEvent(mode, "start")
}

func (s *services) untrack(session *stream.Session, mode stream.Mode) {
	s.recordEvent(mode, "stop")
	if s.metrics != nil {
		s.metrics.Stream.RemoveSession(session)
	}
}

func (s *services) trackGain(g *stream.Gain) {
	if s.metrics != nil {
		s.metrics.Stream.SetGain(g)
	}
}

// stop tears the services down in reverse order of start.
func (s *services) stop() {
	s.unlock()
	if s.watcher != nil {
		s.watcher.Close()
	}
	if s.group != nil {
		s.cancel()
		if err := s.group.Wait(); err != nil {
			s.log.Warn("metrics endpoint failed", logger.Error(err))
		}
	}
}
