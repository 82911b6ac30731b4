// Package conf provides configuration management for playrec.
package conf

import (
	"embed"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/playrec/internal/errors"
	"github.com/tphakala/playrec/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// GetLogger returns the config package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}

// Settings contains all configuration options for playrec.
type Settings struct {
	Main      MainSettings         `mapstructure:"main" yaml:"main"`
	Stream    StreamSettings       `mapstructure:"stream" yaml:"stream"`
	Engine    EngineSettings       `mapstructure:"engine" yaml:"engine"`
	Gain      GainSettings         `mapstructure:"gain" yaml:"gain"`
	Metrics   MetricsSettings      `mapstructure:"metrics" yaml:"metrics"`
	Telemetry TelemetrySettings    `mapstructure:"telemetry" yaml:"telemetry"`
	Logging   logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// MainSettings holds general settings.
type MainSettings struct {
	Name string `mapstructure:"name" yaml:"name"` // client name, empty selects a per-command default
}

// StreamSettings tune the ring buffer and the file worker.
type StreamSettings struct {
	CapacityFrames     int           `mapstructure:"capacity_frames" yaml:"capacity_frames"` // rounded up to a power of two
	StagingFrames      int           `mapstructure:"staging_frames" yaml:"staging_frames"`
	PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Loop               bool          `mapstructure:"loop" yaml:"loop"`
	SampleFormat       string        `mapstructure:"sample_format" yaml:"sample_format"` // float32, pcm16, pcm24 or pcm32
	XrunReportInterval time.Duration `mapstructure:"xrun_report_interval" yaml:"xrun_report_interval"`
	WarnInterval       time.Duration `mapstructure:"warn_interval" yaml:"warn_interval"`
}

// MarshalYAML writes durations in their string form so saved files stay readable.
func (s StreamSettings) MarshalYAML() (any, error) {
	type plain struct {
		CapacityFrames     int    `yaml:"capacity_frames"`
		StagingFrames      int    `yaml:"staging_frames"`
		PollInterval       string `yaml:"poll_interval"`
		Loop               bool   `yaml:"loop"`
		SampleFormat       string `yaml:"sample_format"`
		XrunReportInterval string `yaml:"xrun_report_interval"`
		WarnInterval       string `yaml:"warn_interval"`
	}
	return plain{
		CapacityFrames:     s.CapacityFrames,
		StagingFrames:      s.StagingFrames,
		PollInterval:       s.PollInterval.String(),
		Loop:               s.Loop,
		SampleFormat:       s.SampleFormat,
		XrunReportInterval: s.XrunReportInterval.String(),
		WarnInterval:       s.WarnInterval.String(),
	}, nil
}

// EngineSettings select and configure the realtime audio engine.
type EngineSettings struct {
	Backend        string `mapstructure:"backend" yaml:"backend"` // auto, jack, alsa, pulseaudio, coreaudio, wasapi or null
	SampleRate     int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	BufferSize     int    `mapstructure:"buffer_size" yaml:"buffer_size"` // frames per cycle
	PlaybackDevice string `mapstructure:"playback_device" yaml:"playback_device"`
	CaptureDevice  string `mapstructure:"capture_device" yaml:"capture_device"`
	LockMemory     bool   `mapstructure:"lock_memory" yaml:"lock_memory"`
	Diagnostics    bool   `mapstructure:"diagnostics" yaml:"diagnostics"` // log a system snapshot at start and on xrun bursts
}

// GainSettings configure the gain client. At most one of DB and Linear may be set;
// a zero Linear means unset.
type GainSettings struct {
	DB     float64 `mapstructure:"db" yaml:"db"`
	Linear float64 `mapstructure:"linear" yaml:"linear"`
}

// MetricsSettings control the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// TelemetrySettings control opt-in error reporting.
type TelemetrySettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the configuration file and environment variables, in that order
// of increasing precedence, and validates the result. configFile overrides the search
// of the default locations. Flags bound with viper.BindPFlag take precedence over all.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("config").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Component("config").
			Category(errors.CategoryValidation).
			Build()
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults and environment bindings and reads the configuration file.
// A missing file in the default locations is not an error.
func initViper(configFile string) error {
	viper.SetConfigType("yaml")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		paths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, path := range paths {
			viper.AddConfigPath(path)
		}
	}

	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		return errors.New(err).
			Component("config").
			Category(errors.CategoryValidation).
			Context("operation", "environment").
			Build()
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return errors.New(err).
			Component("config").
			Category(errors.CategoryFileIO).
			Context("operation", "read").
			Context("config_file", configFile).
			Build()
	}

	GetLogger().Debug("config file loaded", logger.String("path", viper.ConfigFileUsed()))
	return nil
}

// GetSettings returns the settings from the last successful Load, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// ConfigFileUsed returns the path of the configuration file that was read, if any.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// DefaultConfigYAML returns the commented default configuration file.
func DefaultConfigYAML() ([]byte, error) {
	return configFiles.ReadFile("config.yaml")
}

// SaveYAMLConfig writes settings to configPath. The file is written to a temporary file
// in the same directory first and renamed into place.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return errors.New(err).
			Component("config").
			Category(errors.CategoryConfiguration).
			Context("operation", "marshal").
			Build()
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fileError(err, configPath, "mkdir")
	}

	tmp, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return fileError(err, configPath, "create_temp")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fileError(err, configPath, "write")
	}
	if err := tmp.Close(); err != nil {
		return fileError(err, configPath, "close")
	}
	if err := os.Rename(tmpName, configPath); err != nil {
		return fileError(err, configPath, "rename")
	}
	return nil
}

// MarshalYAML returns settings as YAML.
func MarshalYAML(settings *Settings) ([]byte, error) {
	return yaml.Marshal(settings)
}

func fileError(err error, path, op string) error {
	return errors.New(err).
		Component("config").
		Category(errors.CategoryFileIO).
		FileContext(path, 0).
		Context("operation", op).
		Build()
}
