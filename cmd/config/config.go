package config

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/playrec/internal/app"
	"github.com/tphakala/playrec/internal/conf"
	"github.com/tphakala/playrec/internal/errors"
)

// Command creates the config command.
func Command(ctx *app.Context) *cobra.Command {
	var (
		output      string
		showDefault bool
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print or write the configuration",
		Long: "Print the effective configuration after defaults, file, environment and flags " +
			"are merged, or the commented default configuration with --default. " +
			"With --output the result is written to a file instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				data []byte
				err  error
			)
			switch {
			case showDefault:
				data, err = conf.DefaultConfigYAML()
			case output != "":
				return conf.SaveYAMLConfig(output, ctx.Runner.Settings())
			default:
				data, err = conf.MarshalYAML(ctx.Runner.Settings())
			}
			if err != nil {
				return err
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return errors.New(err).
					Component("config").
					Category(errors.CategoryFileIO).
					FileContext(output, 0).
					Build()
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().BoolVar(&showDefault, "default", false, "Use the commented default configuration")
	return cmd
}
