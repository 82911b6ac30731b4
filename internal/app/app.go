// Package app wires configuration, logging, telemetry, metrics and the audio engine
// around stream sessions for the playrec commands.
package app

import (
	"strings"
	"time"

	"github.com/tphakala/playrec/internal/buildinfo"
	"github.com/tphakala/playrec/internal/conf"
	"github.com/tphakala/playrec/internal/engine"
	"github.com/tphakala/playrec/internal/engine/miniaudio"
	"github.com/tphakala/playrec/internal/errors"
	"github.com/tphakala/playrec/internal/logger"
	"github.com/tphakala/playrec/internal/stream"
)

// Default client names, used when main.name is empty.
const (
	ClientPlay   = "playrec_play"
	ClientRecord = "playrec_record"
	ClientGain   = "playrec_gain"
)

const sentryFlushTimeout = 2 * time.Second

// GetLogger returns the app module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("app")
}

// Runner executes playrec commands with a fixed set of settings.
type Runner struct {
	settings *conf.Settings
	build    *buildinfo.Context
	central  *logger.CentralLogger
	log      logger.Logger
}

// Setup installs the configured logger as the global logger, initialises error telemetry
// when enabled and returns a Runner. Close releases both.
func Setup(settings *conf.Settings, build *buildinfo.Context) (*Runner, error) {
	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("operation", "logger_setup").
			Build()
	}
	logger.SetGlobal(central)

	r := New(settings, build)
	r.central = central

	if settings.Telemetry.Enabled {
		if err := errors.InitSentry(settings.Telemetry.DSN, build.Release()); err != nil {
			r.log.Warn("error telemetry disabled", logger.Error(err))
		} else {
			r.log.Info("error telemetry enabled")
		}
	}

	r.log.Debug("playrec starting",
		logger.String("version", build.Version),
		logger.String("build_date", build.BuildDate),
		logger.String("config_file", conf.ConfigFileUsed()))
	return r, nil
}

// New returns a Runner that logs through the current global logger.
func New(settings *conf.Settings, build *buildinfo.Context) *Runner {
	if build == nil {
		build = buildinfo.New("", "")
	}
	return &Runner{
		settings: settings,
		build:    build,
		log:      GetLogger(),
	}
}

// Settings returns the runner's settings.
func (r *Runner) Settings() *conf.Settings { return r.settings }

// Close flushes telemetry and the log file.
func (r *Runner) Close() error {
	errors.FlushSentry(sentryFlushTimeout)
	if r.central != nil {
		return r.central.Close()
	}
	return nil
}

func (r *Runner) clientName(fallback string) string {
	if r.settings.Main.Name != "" {
		return r.settings.Main.Name
	}
	return fallback
}

// NewEngine creates the engine selected by settings. The "null" backend yields a clocked
// engine.Null; everything else goes through miniaudio. sampleRate overrides the configured
// rate when positive.
func NewEngine(settings *conf.EngineSettings, clientName string, sampleRate int) (engine.Engine, error) {
	if sampleRate <= 0 {
		sampleRate = settings.SampleRate
	}
	if strings.EqualFold(settings.Backend, "null") {
		return engine.NewNull(engine.NullConfig{
			Name:       clientName,
			SampleRate: sampleRate,
			BufferSize: settings.BufferSize,
		}), nil
	}
	return miniaudio.New(miniaudio.Config{
		Backend:        settings.Backend,
		ClientName:     clientName,
		SampleRate:     sampleRate,
		BufferSize:     settings.BufferSize,
		PlaybackDevice: settings.PlaybackDevice,
		CaptureDevice:  settings.CaptureDevice,
	})
}

// streamConfig maps the stream settings onto a session config for mode.
func (r *Runner) streamConfig(mode stream.Mode) stream.Config {
	st := &r.settings.Stream
	return stream.Config{
		Mode:               mode,
		CapacityFrames:     st.CapacityFrames,
		StagingFrames:      st.StagingFrames,
		PollInterval:       st.PollInterval,
		NoLoop:             !st.Loop,
		WarnInterval:       st.WarnInterval,
		XrunReportInterval: st.XrunReportInterval,
	}
}

func closeEngine(eng engine.Engine, log logger.Logger) {
	if err := eng.Close(); err != nil {
		log.Warn("failed to close audio engine", logger.Error(err))
	}
}
