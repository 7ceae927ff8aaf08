package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRepairCommand(a *app) *cobra.Command {
	var flags saveFlags
	cmd := &cobra.Command{
		Use:   "repair <file> <output>",
		Short: "Rebuild the cross-reference data of a document by scanning its objects",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options(a, cmd)
			if err != nil {
				return err
			}
			doc, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer doc.Close()

			if err := doc.Repair(cmd.Context()); err != nil {
				return fmt.Errorf("repair %s: %w", args[0], err)
			}
			a.logger.Info("repaired", "file", args[0], "objects", doc.NumObjects()-1)

			res, err := saveTo(cmd, doc, args[1], opts)
			if err != nil {
				return err
			}
			printSaveResult(cmd, args[1], res)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
