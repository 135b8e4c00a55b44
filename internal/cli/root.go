// Package cli implements the docpost command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/docpost/internal/app"
	"github.com/roach88/docpost/internal/config"
	"github.com/roach88/docpost/internal/docstore"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	Database   string
	ConfigPath string

	// Lookup reads environment variables; nil means os.LookupEnv.
	Lookup config.LookupFunc

	// AppOptions overrides runtime settings in tests. DBPath and Logger are
	// always filled from the flags.
	AppOptions app.Options
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// DefaultDatabase is the --db default.
const DefaultDatabase = "docpost.db"

// NewRootCommand creates the root command for the docpost CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docpost",
		Short: "docpost - post document fields to an HTTP API and write the results back",
		Long: `docpost watches a collection of JSON documents. When a document's input
field is created or changed, it posts the input to a remote API, optionally
reshapes the response through a versioned template, and writes the result
back to the document. A backfill job processes documents that existed
before the watcher started.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", DefaultDatabase, "path to the SQLite database")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML configuration file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewBackfillCommand(opts))
	cmd.AddCommand(NewDocCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewProxyCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout(), Verbose: o.Verbose}
}

// logger writes to w: text by default, JSON with --format json, Debug
// level with --verbose.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if o.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func (o *RootOptions) lookup() config.LookupFunc {
	if o.Lookup != nil {
		return o.Lookup
	}
	return os.LookupEnv
}

func (o *RootOptions) loadConfig() (config.Config, error) {
	return config.Load(o.ConfigPath, o.lookup())
}

// openRuntime loads the configuration and builds the runtime.
func (o *RootOptions) openRuntime(ctx context.Context, cmd *cobra.Command) (*app.Runtime, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	appOpts := o.AppOptions
	appOpts.DBPath = o.Database
	appOpts.Logger = o.logger(cmd.ErrOrStderr())
	return app.New(ctx, cfg, appOpts)
}

func (o *RootOptions) openStore() (*docstore.Store, error) {
	return docstore.Open(o.Database)
}

// signalContext is cancelled on SIGINT/SIGTERM or when the command's
// context is done.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
