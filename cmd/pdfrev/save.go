package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsawler/pdfrev/document"
)

// saveFlags are the save options settable per invocation. Unset flags keep
// the configured defaults.
type saveFlags struct {
	incremental   bool
	garbage       string
	objectStreams bool
	xrefStream    bool
	compress      bool
	version       string
}

func (f *saveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.garbage, "garbage", "g", "", "garbage collection: none, collect, compact or deduplicate")
	cmd.Flags().BoolVar(&f.objectStreams, "object-streams", false, "pack small objects into object streams")
	cmd.Flags().BoolVar(&f.xrefStream, "xref-stream", false, "write a cross-reference stream")
	cmd.Flags().BoolVar(&f.compress, "compress", false, "compress unfiltered streams")
	cmd.Flags().StringVar(&f.version, "pdf-version", "", "header version of the output, e.g. 1.7")
}

func (f *saveFlags) options(a *app, cmd *cobra.Command) (document.SaveOptions, error) {
	if f.incremental {
		return document.SaveOptions{Incremental: true, XRefStream: f.xrefStream}, nil
	}
	opts, err := a.cfg.SaveOptions()
	if err != nil {
		return opts, err
	}
	if cmd.Flags().Changed("garbage") {
		if opts.Garbage, err = document.ParseGarbageLevel(f.garbage); err != nil {
			return opts, err
		}
	}
	if cmd.Flags().Changed("object-streams") {
		opts.ObjectStreams = f.objectStreams
	}
	if cmd.Flags().Changed("xref-stream") {
		opts.XRefStream = f.xrefStream
	}
	if cmd.Flags().Changed("compress") {
		opts.CompressStreams = f.compress
	}
	opts.Version = f.version
	return opts, nil
}

// saveTo writes doc to a new file at path. On failure the file is removed.
func saveTo(cmd *cobra.Command, doc *document.Document, path string, opts document.SaveOptions) (*document.SaveResult, error) {
	out, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	res, err := doc.Save(cmd.Context(), out, opts)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("save %s: %w", path, err)
	}
	return res, nil
}

func printSaveResult(cmd *cobra.Command, path string, res *document.SaveResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, successStyle.Render("saved ")+path)
	fmt.Fprintln(out, field("written", res.Written))
	fmt.Fprintln(out, field("objects", res.Objects))
	if res.Removed > 0 {
		fmt.Fprintln(out, field("removed", res.Removed))
	}
	if res.Packed > 0 {
		fmt.Fprintln(out, field("packed", res.Packed))
	}
}

func newSaveCommand(a *app) *cobra.Command {
	var flags saveFlags
	cmd := &cobra.Command{
		Use:   "save <file> <output>",
		Short: "Rewrite a document, or append its revisions to a copy",
		Long: `Rewrite a document into a new file. Defaults come from the save section
of the config file; flags override them. With --incremental the output is
a byte copy of the input followed by an empty update section.`,
		Args: cobra.ExactArgs(2),
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

			res, err := saveTo(cmd, doc, args[1], opts)
			if err != nil {
				return err
			}
			printSaveResult(cmd, args[1], res)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&flags.incremental, "incremental", "i", false, "append an update section instead of rewriting")
	flags.register(cmd)
	return cmd
}
