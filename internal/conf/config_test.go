package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/playrec/internal/errors"
)

// isolate gives the test a clean viper instance, an empty home and working directory.
// Tests using it cannot run in parallel because viper state is global.
func isolate(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "auto", s.Engine.Backend)
	assert.Equal(t, DefaultSampleRate, s.Engine.SampleRate)
	assert.Equal(t, DefaultBufferSize, s.Engine.BufferSize)
	assert.Equal(t, DefaultCapacityFrames, s.Stream.CapacityFrames)
	assert.Equal(t, DefaultStagingFrames, s.Stream.StagingFrames)
	assert.Equal(t, 5*time.Millisecond, s.Stream.PollInterval)
	assert.Equal(t, time.Second, s.Stream.XrunReportInterval)
	assert.True(t, s.Stream.Loop)
	assert.Equal(t, "float32", s.Stream.SampleFormat)
	assert.False(t, s.Metrics.Enabled)
	assert.Equal(t, "/metrics", s.Metrics.Path)
	assert.Equal(t, "info", s.Logging.DefaultLevel)
	require.NotNil(t, s.Logging.Console)
	assert.True(t, s.Logging.Console.Enabled)
	assert.Empty(t, ConfigFileUsed())
	assert.Same(t, s, GetSettings())
}

func TestLoadFile(t *testing.T) {
	isolate(t)

	path := writeConfig(t, `
engine:
  backend: "null"
  buffer_size: 128
stream:
  poll_interval: 2ms
  loop: false
  sample_format: pcm24
gain:
  db: -6
`)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "null", s.Engine.Backend)
	assert.Equal(t, 128, s.Engine.BufferSize)
	assert.Equal(t, 2*time.Millisecond, s.Stream.PollInterval)
	assert.False(t, s.Stream.Loop)
	assert.Equal(t, "pcm24", s.Stream.SampleFormat)
	assert.InDelta(t, -6.0, s.Gain.DB, 0)
	// untouched keys keep their defaults
	assert.Equal(t, DefaultSampleRate, s.Engine.SampleRate)
	assert.Equal(t, path, ConfigFileUsed())
}

func TestLoadFindsConfigInWorkingDirectory(t *testing.T) {
	isolate(t)

	require.NoError(t, os.WriteFile("config.yaml", []byte("engine:\n  sample_rate: 44100\n"), 0o600))
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 44100, s.Engine.SampleRate)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	isolate(t)

	path := writeConfig(t, `
engine:
  backend: asio
  sample_rate: 1000
`)
	_, err := Load(path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestEnvironmentOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PLAYREC_ENGINE_BUFFER_SIZE", "256")
	t.Setenv("PLAYREC_STREAM_LOOP", "false")
	t.Setenv("PLAYREC_METRICS_LISTEN", "0.0.0.0:9000")

	path := writeConfig(t, "engine:\n  buffer_size: 1024\n")
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 256, s.Engine.BufferSize, "environment beats the file")
	assert.False(t, s.Stream.Loop)
	assert.Equal(t, "0.0.0.0:9000", s.Metrics.Listen)
}

func TestEnvironmentValidation(t *testing.T) {
	isolate(t)
	t.Setenv("PLAYREC_ENGINE_BACKEND", "directsound")
	t.Setenv("PLAYREC_STREAM_CAPACITY_FRAMES", "-5")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PLAYREC_ENGINE_BACKEND")
	assert.Contains(t, err.Error(), "PLAYREC_STREAM_CAPACITY_FRAMES")
}

func TestSaveAndReload(t *testing.T) {
	isolate(t)

	s, err := Load("")
	require.NoError(t, err)
	s.Engine.Backend = "jack"
	s.Stream.PollInterval = 3 * time.Millisecond
	s.Gain.Linear = 0.5

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveYAMLConfig(path, s))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "poll_interval: 3ms")

	viper.Reset()
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s.Engine, loaded.Engine)
	assert.Equal(t, s.Stream, loaded.Stream)
	assert.Equal(t, s.Gain, loaded.Gain)
	assert.Equal(t, s.Metrics, loaded.Metrics)
}

func TestDefaultConfigTemplateMatchesDefaults(t *testing.T) {
	isolate(t)

	defaults, err := Load("")
	require.NoError(t, err)

	tmpl, err := DefaultConfigYAML()
	require.NoError(t, err)
	viper.Reset()
	fromTemplate, err := Load(writeConfig(t, string(tmpl)))
	require.NoError(t, err)

	assert.Equal(t, defaults.Main, fromTemplate.Main)
	assert.Equal(t, defaults.Stream, fromTemplate.Stream)
	assert.Equal(t, defaults.Engine, fromTemplate.Engine)
	assert.Equal(t, defaults.Gain, fromTemplate.Gain)
	assert.Equal(t, defaults.Metrics, fromTemplate.Metrics)
	assert.Equal(t, defaults.Telemetry, fromTemplate.Telemetry)
	assert.Equal(t, defaults.Logging.DefaultLevel, fromTemplate.Logging.DefaultLevel)
	assert.Equal(t, defaults.Logging.FileOutput, fromTemplate.Logging.FileOutput)
}

func TestGetDefaultConfigPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	paths, err := GetDefaultConfigPaths()
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	assert.Equal(t, ".", paths[0])

	user, err := UserConfigPath()
	require.NoError(t, err)
	assert.Equal(t, home, filepath.Dir(filepath.Dir(filepath.Dir(user))))
}
