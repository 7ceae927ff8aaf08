package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tsawler/pdfrev/pages"
	"github.com/tsawler/pdfrev/validate"
)

func newInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Show the revisions and form fields of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer doc.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle.Render(args[0]))
			fmt.Fprintln(out, field("version", doc.Version()))
			fmt.Fprintln(out, field("size", doc.FileSize()))
			fmt.Fprintln(out, field("objects", doc.NumObjects()-1))
			fmt.Fprintln(out, field("revisions", doc.Versions()))
			fmt.Fprintln(out, field("encrypted", doc.Encrypted()))
			if doc.Repaired() {
				fmt.Fprintln(out, field("repaired", warningStyle.Render("yes")))
			}

			for i, s := range doc.Sections() {
				kind := "table"
				if s.XRefStream {
					kind = "stream"
				}
				fmt.Fprintln(out, field(fmt.Sprintf("revision %d", i),
					fmt.Sprintf("%d objects, %s index at %d", len(s.Numbers()), kind, s.Offset)))
			}

			catalog, err := doc.GetCatalog()
			if err != nil {
				return err
			}
			if list, err := pages.Walk(cmd.Context(), doc, catalog); err == nil {
				size := ""
				if len(list) > 0 {
					if w, h, err := list[0].Size(); err == nil {
						size = fmt.Sprintf(" (first %gx%g)", w, h)
					}
				}
				fmt.Fprintln(out, field("pages", fmt.Sprintf("%d%s", len(list), size)))
			} else {
				a.logger.Warn("page tree unreadable", "err", err)
			}

			fields, err := validate.Fields(cmd.Context(), doc)
			if err != nil {
				return err
			}
			if len(fields) > 0 {
				names := make([]string, len(fields))
				for i, f := range fields {
					names[i] = f.Name
					if f.Type != "" {
						names[i] += " (" + string(f.Type) + ")"
					}
				}
				fmt.Fprintln(out, field("fields", strings.Join(names, ", ")))
			}
			return nil
		},
	}
}
