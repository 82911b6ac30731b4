package record

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/playrec/internal/app"
	"github.com/tphakala/playrec/internal/conf"
)

// Command creates the record command.
func Command(ctx *app.Context) *cobra.Command {
	var (
		channels int
		duration = new(durationFlag)
	)

	cmd := &cobra.Command{
		Use:   "record [file.wav]",
		Short: "Record engine input to a WAV file",
		Long:  "Capture the engine's input ports to a WAV file until interrupted or for --duration.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := ctx.Runner.Record(cmd.Context(), args[0], channels, duration.value)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recorded %d frames, %d overflows, %d short writes\n",
				stats.Frames, stats.Overflows, stats.ShortWrites)
			return nil
		},
	}

	cmd.Flags().IntVarP(&channels, "channels", "n", 2, "Number of channels to record")
	cmd.Flags().VarP(duration, "duration", "t", "Stop after this long, for example 30s (default: until interrupted)")
	if err := setupFlags(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// setupFlags configures the flags that map to configuration keys.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().StringP("device", "d", "", "Capture device name or id")
	cmd.Flags().StringP("format", "f", conf.DefaultSampleFormat, "Sample format (float32, pcm16, pcm24, pcm32)")

	return conf.BindFlags(cmd.Flags(), map[string]string{
		"engine.capture_device": "device",
		"stream.sample_format":  "format",
	})
}
