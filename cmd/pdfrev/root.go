package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/tsawler/pdfrev/document"
	"github.com/tsawler/pdfrev/internal/config"
)

// Version is set via -ldflags.
var Version = "dev"

// app carries the state shared by the subcommands of one invocation.
type app struct {
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *log.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "pdfrev",
		Short: "Inspect and rewrite the revisions of PDF documents",
		Long: titleStyle.Render("pdfrev") + ` reads a PDF as a chain of revisions: the original file plus one
section per incremental update. It shows objects as of any revision,
rewrites files with garbage collection and object streams, repairs broken
cross-reference data and checks signed revisions against their field locks.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default ./pdfrev.toml or the user config directory)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newInfoCommand(a),
		newShowCommand(a),
		newSaveCommand(a),
		newRepairCommand(a),
		newValidateCommand(a),
		newConfigCommand(a),
	)
	return root
}

// Execute runs the command line.
func Execute() {
	if err := fang.Execute(
		context.Background(),
		newRootCommand(),
		fang.WithVersion(Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Log.Level = log.DebugLevel.String()
	}
	logger, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) open(path string) (*document.Document, error) {
	doc, err := document.Open(path, document.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if doc.Repaired() {
		a.logger.Warn("cross-reference data was rebuilt", "file", path)
	}
	return doc, nil
}
