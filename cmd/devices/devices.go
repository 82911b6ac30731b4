package devices

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/playrec/internal/app"
)

// Command creates the devices command.
func Command(ctx *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio devices of the selected backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := ctx.Runner.Devices()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tINDEX\tDEFAULT\tNAME\tID")
			for _, d := range devices {
				def := ""
				if d.IsDefault {
					def = "*"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", d.Kind, d.Index, def, d.Name, d.ID)
			}
			return w.Flush()
		},
	}
}
