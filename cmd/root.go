// Package cmd assembles the playrec command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/playrec/cmd/config"
	"github.com/tphakala/playrec/cmd/devices"
	"github.com/tphakala/playrec/cmd/gain"
	"github.com/tphakala/playrec/cmd/info"
	"github.com/tphakala/playrec/cmd/play"
	"github.com/tphakala/playrec/cmd/record"
	"github.com/tphakala/playrec/internal/app"
	"github.com/tphakala/playrec/internal/conf"
	"github.com/tphakala/playrec/internal/logger"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *app.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "playrec",
		Short:        "Stream audio files to and from a realtime audio engine",
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, ctx); err != nil {
		panic(err)
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), ctx.Build.String())
		},
	}

	rootCmd.AddCommand(
		play.Command(ctx),
		record.Command(ctx),
		gain.Command(ctx),
		devices.Command(ctx),
		info.Command(ctx),
		config.Command(ctx),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		// Skip setup for commands that need no configuration
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initialize(ctx)
	}
	rootCmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		if ctx.Runner != nil {
			return ctx.Runner.Close()
		}
		return nil
	}

	return rootCmd
}

// initialize loads configuration, with bound flags taking precedence, and prepares the runner.
func initialize(ctx *app.Context) error {
	settings, err := conf.Load(ctx.ConfigFile)
	if err != nil {
		return err
	}
	runner, err := app.Setup(settings, ctx.Build)
	if err != nil {
		return err
	}
	ctx.Runner = runner
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, ctx *app.Context) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.ConfigFile, "config", "c", "", "Configuration file (default: search ., ~/.config/playrec, /etc/playrec)")
	flags.String("log-level", logger.DefaultLogLevel, "Log level (trace, debug, info, warn, error)")
	flags.StringP("backend", "b", conf.DefaultBackend, "Audio backend (auto, jack, alsa, pulseaudio, coreaudio, wasapi, null)")
	flags.Int("sample-rate", conf.DefaultSampleRate, "Engine sample rate in Hz")
	flags.Int("buffer-size", conf.DefaultBufferSize, "Frames per engine cycle")
	flags.Bool("metrics", false, "Serve Prometheus metrics")
	flags.String("metrics-listen", conf.DefaultMetricsListen, "Metrics listen address")
	flags.Bool("lock-memory", false, "Lock process memory to avoid page faults")

	return conf.BindFlags(flags, map[string]string{
		"logging.default_level": "log-level",
		"engine.backend":        "backend",
		"engine.sample_rate":    "sample-rate",
		"engine.buffer_size":    "buffer-size",
		"metrics.enabled":       "metrics",
		"metrics.listen":        "metrics-listen",
		"engine.lock_memory":    "lock-memory",
	})
}
