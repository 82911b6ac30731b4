package app

import (
	"context"
	"time"

	"github.com/tphakala/playrec/internal/audiofile"
	"github.com/tphakala/playrec/internal/engine"
	"github.com/tphakala/playrec/internal/logger"
	"github.com/tphakala/playrec/internal/stream"
)

// Play streams the audio file at path to the engine's outputs. It returns when the file
// ends with looping disabled, when the engine shuts down or when ctx is cancelled. The
// engine is opened at the file's sample rate.
func (r *Runner) Play(ctx context.Context, path string) (stream.Stats, error) {
	src, err := audiofile.Open(path)
	if err != nil {
		return stream.Stats{}, err
	}

	eng, err := NewEngine(&r.settings.Engine, r.clientName(ClientPlay), src.SampleRate())
	if err != nil {
		_ = src.Close()
		return stream.Stats{}, err
	}
	defer closeEngine(eng, r.log)

	r.log.Info("playing",
		logger.String("path", path),
		logger.Int("channels", src.Channels()),
		logger.Int("sample_rate", src.SampleRate()))

	return r.runSession(ctx, eng, r.streamConfig(stream.Playback), src, nil)
}

// Record captures channels engine inputs into a WAV file at path. A positive duration
// stops the recording after that long; otherwise it runs until ctx is cancelled or the
// engine shuts down.
func (r *Runner) Record(ctx context.Context, path string, channels int, duration time.Duration) (stream.Stats, error) {
	format, err := audiofile.ParseSampleFormat(r.settings.Stream.SampleFormat)
	if err != nil {
		return stream.Stats{}, err
	}

	eng, err := NewEngine(&r.settings.Engine, r.clientName(ClientRecord), 0)
	if err != nil {
		return stream.Stats{}, err
	}
	defer closeEngine(eng, r.log)

	sink, err := audiofile.Create(path, channels, eng.SampleRate(), format)
	if err != nil {
		return stream.Stats{}, err
	}

	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	r.log.Info("recording",
		logger.String("path", path),
		logger.Int("channels", channels),
		logger.Int("sample_rate", eng.SampleRate()),
		logger.String("format", format.String()),
		logger.Duration("duration", duration))

	cfg := r.streamConfig(stream.Record)
	cfg.Channels = channels
	cfg.SampleRate = eng.SampleRate()
	return r.runSession(ctx, eng, cfg, nil, sink)
}

// runSession runs one session to completion. src and sink are closed on every path.
func (r *Runner) runSession(ctx context.Context, eng engine.Engine, cfg stream.Config, src audiofile.Source, sink audiofile.Sink) (stream.Stats, error) {
	closeFiles := func() {
		if src != nil {
			_ = src.Close()
		}
		if sink != nil {
			_ = sink.Close()
		}
	}

	svc, err := r.startServices(ctx)
	if err != nil {
		closeFiles()
		return stream.Stats{}, err
	}
	defer svc.stop()

	session := stream.NewSession(r.log, stream.WithXrunHook(svc.xrunHook))
	if err := session.Configure(cfg, src, sink); err != nil {
		closeFiles()
		return stream.Stats{}, err
	}
	if err := session.Start(ctx, eng); err != nil {
		// Stop from Configured closes the files
		_ = session.Stop()
		return session.Stats(), err
	}

	svc.track(session, cfg.Mode)
	defer svc.untrack(session, cfg.Mode)

	err = session.Wait()
	stats := session.Stats()
	if err != nil {
		r.log.Error("stream failed", logger.Error(err))
	}
	return stats, err
}
