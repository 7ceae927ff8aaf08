package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tsawler/pdfrev/validate"
)

func newValidateCommand(a *app) *cobra.Command {
	var signed int
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check later revisions against the field locks of signed ones",
		Long: `Check that every change made after a signature is allowed by the locking
policy of the signatures: locked fields unchanged, unlocked fields changed
only in value and appearance, and nothing else touched beyond what the
permission level allows. Without --signed every pair of adjacent revisions
is checked and the first offending revision is reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.open(args[0])
			if err != nil {
				return err
			}
			defer doc.Close()

			var res *validate.Result
			if cmd.Flags().Changed("signed") {
				res, err = validate.Check(cmd.Context(), doc, signed, doc.Versions()-1)
			} else {
				res, err = validate.History(cmd.Context(), doc)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !res.Policy.Empty() {
				fmt.Fprintln(out, field("policy", res.Policy))
			}
			switch {
			case res.Partial:
				fmt.Fprintln(out, warningStyle.Render("interrupted before every change was checked"))
			case res.Accepted:
				fmt.Fprintln(out, successStyle.Render("accepted"))
			default:
				fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("rejected at revision %d", res.Version)))
				for _, r := range res.Rejected {
					fmt.Fprintln(out, "  "+r.String())
				}
			}
			return res.Err()
		},
	}
	cmd.Flags().IntVar(&signed, "signed", 0, "revision the newest one is compared against")
	return cmd
}
