package play

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/playrec/internal/app"
	"github.com/tphakala/playrec/internal/conf"
)

// Command creates the play command.
func Command(ctx *app.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play [file]",
		Short: "Play an audio file through the engine",
		Long: "Stream an audio file to the engine's playback ports. The file loops until " +
			"interrupted unless --loop=false is given.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := ctx.Runner.Play(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "played %d frames in %d cycles, %d underflows, %d rewinds\n",
				stats.Frames, stats.Cycles, stats.Underflows, stats.Rewinds)
			return nil
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// setupFlags configures flags specific to the play command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().Bool("loop", true, "Restart the file when it ends")
	cmd.Flags().StringP("device", "d", "", "Playback device name or id")
	cmd.Flags().Int("capacity", conf.DefaultCapacityFrames, "Ring buffer capacity in frames")

	return conf.BindFlags(cmd.Flags(), map[string]string{
		"stream.loop":            "loop",
		"engine.playback_device": "device",
		"stream.capacity_frames": "capacity",
	})
}
