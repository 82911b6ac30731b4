package conf

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/playrec/internal/frames"
)

// Accepted enumerations.
var (
	ValidBackends      = []string{"auto", "jack", "alsa", "pulseaudio", "pulse", "coreaudio", "wasapi", "null"}
	ValidSampleFormats = []string{"float32", "pcm16", "pcm24", "pcm32"}
	ValidLogLevels     = []string{"trace", "debug", "info", "warn", "warning", "error"}
)

// Limits enforced by ValidateSettings.
const (
	MaxCapacityFrames = 1 << 24
	MinSampleRate     = 8000
	MaxSampleRate     = 384000
	MinBufferSize     = 16
	MaxBufferSize     = 16384
	MinPollInterval   = 100 * time.Microsecond
	MaxPollInterval   = time.Second
)

// ValidationError represents a collection of validation errors.
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors.
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct and reports every problem at once.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, fn := range []func(*Settings) []string{
		validateStreamSettings,
		validateEngineSettings,
		validateGainSettings,
		validateMetricsSettings,
		validateTelemetrySettings,
		validateLoggingSettings,
	} {
		ve.Errors = append(ve.Errors, fn(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateStreamSettings(s *Settings) []string {
	var errs []string
	st := &s.Stream

	if st.CapacityFrames < 1 || st.CapacityFrames > MaxCapacityFrames {
		errs = append(errs, fmt.Sprintf("stream.capacity_frames must be between 1 and %d, got %d", MaxCapacityFrames, st.CapacityFrames))
	}
	if st.StagingFrames < 1 {
		errs = append(errs, fmt.Sprintf("stream.staging_frames must be positive, got %d", st.StagingFrames))
	}
	if st.PollInterval < MinPollInterval || st.PollInterval > MaxPollInterval {
		errs = append(errs, fmt.Sprintf("stream.poll_interval must be between %s and %s, got %s", MinPollInterval, MaxPollInterval, st.PollInterval))
	}
	if !slices.Contains(ValidSampleFormats, strings.ToLower(st.SampleFormat)) {
		errs = append(errs, fmt.Sprintf("stream.sample_format must be one of %s, got %q", strings.Join(ValidSampleFormats, ", "), st.SampleFormat))
	}
	if st.XrunReportInterval <= 0 {
		errs = append(errs, "stream.xrun_report_interval must be positive")
	}
	if st.WarnInterval < 0 {
		errs = append(errs, "stream.warn_interval must not be negative")
	}
	return errs
}

func validateEngineSettings(s *Settings) []string {
	var errs []string
	e := &s.Engine

	if !slices.Contains(ValidBackends, strings.ToLower(e.Backend)) {
		errs = append(errs, fmt.Sprintf("engine.backend must be one of %s, got %q", strings.Join(ValidBackends, ", "), e.Backend))
	}
	if e.SampleRate < MinSampleRate || e.SampleRate > MaxSampleRate {
		errs = append(errs, fmt.Sprintf("engine.sample_rate must be between %d and %d, got %d", MinSampleRate, MaxSampleRate, e.SampleRate))
	}
	if e.BufferSize < MinBufferSize || e.BufferSize > MaxBufferSize {
		errs = append(errs, fmt.Sprintf("engine.buffer_size must be between %d and %d, got %d", MinBufferSize, MaxBufferSize, e.BufferSize))
	}
	return errs
}

func validateGainSettings(s *Settings) []string {
	var errs []string
	g := &s.Gain

	if math.IsNaN(g.DB) || math.IsInf(g.DB, 1) {
		errs = append(errs, fmt.Sprintf("gain.db must be a finite number, got %v", g.DB))
	}
	if g.Linear < 0 || math.IsNaN(g.Linear) || g.Linear > math.MaxFloat32 {
		errs = append(errs, fmt.Sprintf("gain.linear must be a finite non-negative factor, got %v", g.Linear))
	}
	if !math.IsNaN(g.DB) && !math.IsInf(g.DB, 0) && frames.DBToLinear(g.DB) > math.MaxFloat32 {
		errs = append(errs, fmt.Sprintf("gain.db is too large, got %v", g.DB))
	}
	if g.DB != 0 && g.Linear != 0 {
		errs = append(errs, "gain.db and gain.linear are mutually exclusive")
	}
	return errs
}

func validateMetricsSettings(s *Settings) []string {
	if !s.Metrics.Enabled {
		return nil
	}
	var errs []string
	if s.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}
	if !strings.HasPrefix(s.Metrics.Path, "/") {
		errs = append(errs, fmt.Sprintf("metrics.path must start with /, got %q", s.Metrics.Path))
	}
	return errs
}

func validateTelemetrySettings(s *Settings) []string {
	if s.Telemetry.Enabled && s.Telemetry.DSN == "" {
		return []string{"telemetry.dsn is required when telemetry is enabled"}
	}
	return nil
}

func validateLoggingSettings(s *Settings) []string {
	var errs []string
	check := func(key, level string) {
		if level != "" && !slices.Contains(ValidLogLevels, strings.ToLower(level)) {
			errs = append(errs, fmt.Sprintf("%s must be one of %s, got %q", key, strings.Join(ValidLogLevels, ", "), level))
		}
	}
	check("logging.default_level", s.Logging.DefaultLevel)
	if s.Logging.Console != nil {
		check("logging.console.level", s.Logging.Console.Level)
	}
	if s.Logging.FileOutput != nil {
		check("logging.file_output.level", s.Logging.FileOutput.Level)
		if s.Logging.FileOutput.Enabled && s.Logging.FileOutput.Path == "" {
			errs = append(errs, "logging.file_output.path is required when file output is enabled")
		}
	}
	for module, level := range s.Logging.ModuleLevels {
		check("logging.module_levels."+module, level)
	}
	return errs
}
