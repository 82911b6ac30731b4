package info

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/playrec/internal/app"
	"github.com/tphakala/playrec/internal/audiofile"
	"github.com/tphakala/playrec/internal/errors"
)

// Command creates the info command.
func Command(_ *app.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "info [file...]",
		Short: "Describe audio files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			for _, path := range args {
				fi, err := audiofile.Info(path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					errs = append(errs, err)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), fi.String())
			}
			return errors.Join(errs...)
		},
	}
}
