package gain

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/playrec/internal/app"
	"github.com/tphakala/playrec/internal/conf"
)

// Command creates the gain command.
func Command(ctx *app.Context) *cobra.Command {
	var channels int

	cmd := &cobra.Command{
		Use:   "gain",
		Short: "Run a gain stage between engine inputs and outputs",
		Long:  "Copy each input port to the matching output port scaled by a fixed gain until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := ctx.Runner.Gain(cmd.Context(), channels)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d cycles at %.2f dB\n", g.Cycles(), g.DB())
			return nil
		},
	}

	cmd.Flags().IntVarP(&channels, "channels", "n", 2, "Number of channels")
	cmd.Flags().Float64("db", 0, "Gain in decibels")
	cmd.Flags().Float64("linear", 0, "Linear gain factor, exclusive with --db")
	if err := conf.BindFlags(cmd.Flags(), map[string]string{
		"gain.db":     "db",
		"gain.linear": "linear",
	}); err != nil {
		panic(err)
	}
	return cmd
}
