package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// BackfillOptions holds flags for the backfill command.
type BackfillOptions struct {
	*RootOptions
	Drain bool
}

// BackfillResult is the output of the backfill command.
type BackfillResult struct {
	JobID   string `json:"job_id"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewBackfillCommand creates the backfill command.
func NewBackfillCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackfillOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Start a backfill job over the existing documents",
		Long: `Enqueue the first dispatch of a backfill job. A running "docpost run"
picks it up; with --drain this command works the queue itself until the
job reports its final state.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Drain, "drain", false, "process the job in this process until it completes")

	return cmd
}

func runBackfill(opts *BackfillOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx, cancel := signalContext(cmd)
	defer cancel()

	rt, err := opts.openRuntime(ctx, cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to start", err)
	}
	defer rt.Close()

	job, err := rt.StartBackfill(ctx)
	if err != nil {
		return formatter.Fail(ExitFailure, "failed to start backfill", err)
	}
	result := BackfillResult{JobID: job.JobID}

	if !opts.Drain {
		return formatter.SuccessText(result, fmt.Sprintf("Backfill job %s enqueued.", job.JobID))
	}

	before, err := rt.Queue.Counts(ctx)
	if err != nil {
		return formatter.Fail(ExitFailure, "failed to read backfill queue", err)
	}
	if err := rt.DrainBackfill(ctx); err != nil {
		return formatter.Fail(ExitFailure, "backfill failed", err)
	}
	after, err := rt.Queue.Counts(ctx)
	if err != nil {
		return formatter.Fail(ExitFailure, "failed to read backfill queue", err)
	}
	// The final state is only written by a dispatch that ran to the end.
	if dead := after.Dead - before.Dead; dead > 0 {
		return formatter.Fail(ExitFailure, "backfill failed",
			fmt.Errorf("%d dispatch task(s) dead-lettered, see \"docpost status\"", dead))
	}
	st, ok, err := rt.Store.GetProcessingState(ctx, rt.Config.InstanceID)
	if err != nil {
		return formatter.Fail(ExitFailure, "failed to read processing state", err)
	}
	if ok {
		result.State = st.State
		result.Message = st.Message
	}
	return formatter.SuccessText(result, fmt.Sprintf("%s: %s", result.State, result.Message))
}
