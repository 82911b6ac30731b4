package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/playrec/internal/logger"
)

// Default values that other packages refer to.
const (
	DefaultBackend        = "auto"
	DefaultSampleRate     = 48000
	DefaultBufferSize     = 512
	DefaultCapacityFrames = 65536
	DefaultStagingFrames  = 4096
	DefaultSampleFormat   = "float32"
	DefaultMetricsListen  = "127.0.0.1:9464"
	DefaultMetricsPath    = "/metrics"
)

// setDefaultConfig registers a default for every key. Environment variables only
// reach keys viper knows about, so new settings need a default here.
func setDefaultConfig() {
	viper.SetDefault("main.name", "")

	viper.SetDefault("stream.capacity_frames", DefaultCapacityFrames)
	viper.SetDefault("stream.staging_frames", DefaultStagingFrames)
	viper.SetDefault("stream.poll_interval", 5*time.Millisecond)
	viper.SetDefault("stream.loop", true)
	viper.SetDefault("stream.sample_format", DefaultSampleFormat)
	viper.SetDefault("stream.xrun_report_interval", time.Second)
	viper.SetDefault("stream.warn_interval", time.Second)

	viper.SetDefault("engine.backend", DefaultBackend)
	viper.SetDefault("engine.sample_rate", DefaultSampleRate)
	viper.SetDefault("engine.buffer_size", DefaultBufferSize)
	viper.SetDefault("engine.playback_device", "")
	viper.SetDefault("engine.capture_device", "")
	viper.SetDefault("engine.lock_memory", false)
	viper.SetDefault("engine.diagnostics", true)

	viper.SetDefault("gain.db", 0.0)
	viper.SetDefault("gain.linear", 0.0)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", DefaultMetricsListen)
	viper.SetDefault("metrics.path", DefaultMetricsPath)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")

	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", "")
	viper.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", "")
}
