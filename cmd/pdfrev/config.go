package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the effective configuration in config file syntax. Settings are
read from pdfrev.toml or pdfrev.yaml in the working directory or the user
config directory, or from --config, and PDFREV_ environment variables
(PDFREV_SAVE_GARBAGE, PDFREV_LOG_LEVEL, ...) override them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := a.cfg.TOML()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.cfg.Path != "" {
				fmt.Fprintf(out, "# %s\n", a.cfg.Path)
			}
			fmt.Fprint(out, string(text))
			return nil
		},
	}
}
