package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Backfill bool

	// ready, when set, is called once the runtime is up. Used by tests.
	ready func()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the collection and process document writes",
		Long: `Watch the configured collection and process every document write, and
work the backfill queue, until interrupted.

With --backfill, a backfill job over the existing documents is started
first.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Backfill, "backfill", false, "start a backfill job over existing documents")

	return cmd
}

func runRun(opts *RunOptions, cmd *cobra.Command) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	rt, err := opts.openRuntime(ctx, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	log := rt.Logs.Slog()

	if opts.Backfill {
		job, err := rt.StartBackfill(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to start backfill", err)
		}
		log.Info("backfill started", "job", job.JobID)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s. Press Ctrl-C to stop.\n", rt.Config.Collection)
	if opts.ready != nil {
		opts.ready()
	}

	if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "runtime error", err)
	}
	log.Info("stopped gracefully")
	return nil
}
