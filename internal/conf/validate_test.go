package conf

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/playrec/internal/logger"
)

func validSettings() *Settings {
	return &Settings{
		Stream: StreamSettings{
			CapacityFrames:     DefaultCapacityFrames,
			StagingFrames:      DefaultStagingFrames,
			PollInterval:       5 * time.Millisecond,
			Loop:               true,
			SampleFormat:       DefaultSampleFormat,
			XrunReportInterval: time.Second,
			WarnInterval:       time.Second,
		},
		Engine: EngineSettings{
			Backend:    DefaultBackend,
			SampleRate: DefaultSampleRate,
			BufferSize: DefaultBufferSize,
		},
		Metrics: MetricsSettings{Listen: DefaultMetricsListen, Path: DefaultMetricsPath},
		Logging: logger.LoggingConfig{
			DefaultLevel: "info",
			Console:      &logger.ConsoleOutput{Enabled: true},
		},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"defaults", func(*Settings) {}, ""},
		{"capacity zero", func(s *Settings) { s.Stream.CapacityFrames = 0 }, "stream.capacity_frames"},
		{"capacity too large", func(s *Settings) { s.Stream.CapacityFrames = MaxCapacityFrames + 1 }, "stream.capacity_frames"},
		{"staging zero", func(s *Settings) { s.Stream.StagingFrames = 0 }, "stream.staging_frames"},
		{"poll too short", func(s *Settings) { s.Stream.PollInterval = time.Microsecond }, "stream.poll_interval"},
		{"poll too long", func(s *Settings) { s.Stream.PollInterval = time.Minute }, "stream.poll_interval"},
		{"sample format", func(s *Settings) { s.Stream.SampleFormat = "mp3" }, "stream.sample_format"},
		{"sample format is case insensitive", func(s *Settings) { s.Stream.SampleFormat = "PCM16" }, ""},
		{"xrun interval", func(s *Settings) { s.Stream.XrunReportInterval = 0 }, "stream.xrun_report_interval"},
		{"backend", func(s *Settings) { s.Engine.Backend = "oss" }, "engine.backend"},
		{"backend alias", func(s *Settings) { s.Engine.Backend = "pulse" }, ""},
		{"sample rate", func(s *Settings) { s.Engine.SampleRate = 400000 }, "engine.sample_rate"},
		{"buffer size", func(s *Settings) { s.Engine.BufferSize = 8 }, "engine.buffer_size"},
		{"gain db nan", func(s *Settings) { s.Gain.DB = math.NaN() }, "gain.db"},
		{"gain db minus infinity mutes", func(s *Settings) { s.Gain.DB = math.Inf(-1) }, ""},
		{"gain linear negative", func(s *Settings) { s.Gain.Linear = -1 }, "gain.linear"},
		{"gain linear beyond float32", func(s *Settings) { s.Gain.Linear = 1e39 }, "gain.linear"},
		{"gain db beyond float32", func(s *Settings) { s.Gain.DB = 800 }, "gain.db"},
		{"gain db large but representable", func(s *Settings) { s.Gain.DB = 700 }, ""},
		{"gain both set", func(s *Settings) { s.Gain.DB, s.Gain.Linear = 3, 2 }, "mutually exclusive"},
		{"metrics without listen", func(s *Settings) { s.Metrics.Enabled, s.Metrics.Listen = true, "" }, "metrics.listen"},
		{"metrics bad path", func(s *Settings) { s.Metrics.Enabled, s.Metrics.Path = true, "metrics" }, "metrics.path"},
		{"metrics disabled ignores listen", func(s *Settings) { s.Metrics.Listen = "" }, ""},
		{"telemetry without dsn", func(s *Settings) { s.Telemetry.Enabled = true }, "telemetry.dsn"},
		{"log level", func(s *Settings) { s.Logging.DefaultLevel = "loud" }, "logging.default_level"},
		{"module log level", func(s *Settings) { s.Logging.ModuleLevels = map[string]string{"stream": "chatty"} }, "logging.module_levels.stream"},
		{"file log without path", func(s *Settings) { s.Logging.FileOutput = &logger.FileOutput{Enabled: true} }, "logging.file_output.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateSettingsCollectsAllErrors(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Engine.Backend = "oss"
	s.Engine.BufferSize = 1
	s.Stream.StagingFrames = -1

	err := ValidateSettings(s)
	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 3)
}

func TestValidateEnvHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fn      func(string) error
		value   string
		wantErr bool
	}{
		{"bool true", validateEnvBool, "true", false},
		{"bool with spaces", validateEnvBool, " 0 ", false},
		{"bool yes", validateEnvBool, "yes", true},
		{"positive int", validateEnvPositiveInt, "512", false},
		{"zero int", validateEnvPositiveInt, "0", true},
		{"float is not int", validateEnvPositiveInt, "1.5", true},
		{"backend jack", validateEnvBackend, "JACK", false},
		{"backend unknown", validateEnvBackend, "asio", true},
		{"format pcm16", validateEnvSampleFormat, "pcm16", false},
		{"format unknown", validateEnvSampleFormat, "pcm8", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.fn(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
