package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/playrec/internal/app"
	"github.com/tphakala/playrec/internal/audiofile"
	"github.com/tphakala/playrec/internal/buildinfo"
)

// execute runs the CLI with args in an isolated viper, home and working directory.
// Tests using it cannot run in parallel because viper state is global.
func execute(t *testing.T, args ...string) (string, *app.Context, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	ctx := app.NewContext(buildinfo.New("v9.9.9", "test"))
	root := RootCommand(ctx)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), ctx, err
}

func TestVersion(t *testing.T) {
	out, ctx, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "playrec v9.9.9")
	assert.Nil(t, ctx.Runner, "version needs no configuration")
}

func TestFlagsOverrideConfig(t *testing.T) {
	_, ctx, err := execute(t, "devices", "--backend", "null", "--buffer-size", "128", "--sample-rate", "44100")
	require.NoError(t, err)
	require.NotNil(t, ctx.Runner)

	s := ctx.Runner.Settings()
	assert.Equal(t, "null", s.Engine.Backend)
	assert.Equal(t, 128, s.Engine.BufferSize)
	assert.Equal(t, 44100, s.Engine.SampleRate)
}

func TestInvalidFlagValueFailsValidation(t *testing.T) {
	_, _, err := execute(t, "devices", "--backend", "null", "--buffer-size", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.buffer_size")
}

func TestDevicesNull(t *testing.T) {
	out, _, err := execute(t, "devices", "-b", "null")
	require.NoError(t, err)
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "playback")
	assert.Contains(t, out, "capture")
}

func TestConfigDefault(t *testing.T) {
	out, _, err := execute(t, "config", "--default")
	require.NoError(t, err)
	assert.Contains(t, out, "capacity_frames")
	assert.Contains(t, out, "#")
}

func TestConfigEffectiveToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "config.yaml")
	_, _, err := execute(t, "config", "-b", "jack", "-o", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "backend: jack")
}

func TestInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	sink, err := audiofile.Create(path, 1, 22050, audiofile.FormatPCM16)
	require.NoError(t, err)
	_, err = sink.WriteFrames(make([]float32, 2205), 2205)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	out, _, err := execute(t, "info", path, filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
	assert.Contains(t, out, "1 ch, 22050 Hz, 16 bit, 100ms")
	assert.Contains(t, out, "missing.wav")
}

func TestPlayAndRecordNull(t *testing.T) {
	dir := t.TempDir()
	take := filepath.Join(dir, "take.wav")

	out, _, err := execute(t, "record", take, "-b", "null", "-n", "1", "-t", "100ms", "-f", "float32")
	require.NoError(t, err)
	assert.Contains(t, out, "recorded")

	info, err := audiofile.Info(take)
	require.NoError(t, err)
	assert.Equal(t, 32, info.BitDepth)

	out, _, err = execute(t, "play", take, "-b", "null", "--loop=false")
	require.NoError(t, err)
	assert.Contains(t, out, "played")
}

func TestRecordRejectsNegativeDuration(t *testing.T) {
	_, _, err := execute(t, "record", "x.wav", "-b", "null", "-t", "-1s")
	assert.Error(t, err)
}
