package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tsawler/pdfrev/core"
	"github.com/tsawler/pdfrev/resolver"
)

func newShowCommand(a *app) *cobra.Command {
	var (
		revision int
		deep     bool
		depth    int
	)
	cmd := &cobra.Command{
		Use:   "show <file> <object>",
		Short: "Print an object as of a revision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			num, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("object number %q: %w", args[1], err)
			}
			doc, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer doc.Close()

			if revision < 0 {
				revision = doc.Versions() - 1
			}
			view, err := doc.View(revision)
			if err != nil {
				return err
			}

			var obj core.Object
			if deep {
				obj, err = resolver.NewResolver(view, resolver.WithMaxDepth(depth)).GetObjectResolvedDeep(num)
			} else {
				obj, err = view.Get(num)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if s, ok := obj.(*core.Stream); ok {
				fmt.Fprintf(out, "%s\n", core.Serialize(s.Dict))
				fmt.Fprintf(out, "%% %d bytes of stream data\n", len(s.Data))
				return nil
			}
			fmt.Fprintf(out, "%s\n", core.Serialize(obj))
			return nil
		},
	}
	cmd.Flags().IntVarP(&revision, "revision", "r", -1, "revision to read (default newest)")
	cmd.Flags().BoolVar(&deep, "resolve", false, "replace references by their targets")
	cmd.Flags().IntVar(&depth, "depth", resolver.DefaultMaxDepth, "nesting limit of --resolve")
	return cmd
}
