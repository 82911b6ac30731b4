package app

import (
	"context"

	"github.com/tphakala/playrec/internal/errors"
	"github.com/tphakala/playrec/internal/logger"
	"github.com/tphakala/playrec/internal/stream"
)

// Gain runs a gain client with channels inputs and outputs until ctx is cancelled or the
// engine shuts down. The initial gain comes from the gain settings.
func (r *Runner) Gain(ctx context.Context, channels int) (*stream.Gain, error) {
	g, err := stream.NewGain(channels)
	if err != nil {
		return nil, err
	}
	switch gs := r.settings.Gain; {
	case gs.Linear != 0:
		err = g.SetLinear(gs.Linear)
	case gs.DB != 0:
		err = g.SetDB(gs.DB)
	}
	if err != nil {
		return nil, err
	}

	eng, err := NewEngine(&r.settings.Engine, r.clientName(ClientGain), 0)
	if err != nil {
		return nil, err
	}
	defer closeEngine(eng, r.log)

	svc, err := r.startServices(ctx)
	if err != nil {
		return nil, err
	}
	defer svc.stop()

	if err := g.Attach(eng); err != nil {
		return nil, err
	}
	shutdown := make(chan string, 1)
	eng.OnShutdown(func(reason string) {
		select {
		case shutdown <- reason:
		default:
		}
	})
	if err := eng.Activate(); err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryAudioEngine).
			Context("engine", eng.Name()).
			Context("operation", "activate").
			Build()
	}
	svc.trackGain(g)

	select {
	case <-ctx.Done():
		r.log.Info("gain client stopping")
	case reason := <-shutdown:
		r.log.Warn("audio engine shut down", logger.String("reason", reason))
	}

	if err := eng.Deactivate(); err != nil {
		r.log.Warn("failed to deactivate engine", logger.Error(err))
	}
	r.log.Info("gain client stopped", logger.Uint64("cycles", g.Cycles()))
	return g, nil
}
