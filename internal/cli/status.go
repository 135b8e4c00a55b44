package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/docpost/internal/backfill"
	"github.com/roach88/docpost/internal/config"
	"github.com/roach88/docpost/internal/docstore"
	"github.com/roach88/docpost/internal/taskqueue"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Instance string
}

// StatusResult is the output of the status command.
type StatusResult struct {
	Instance  string              `json:"instance"`
	State     string              `json:"state,omitempty"`
	Message   string              `json:"message,omitempty"`
	UpdatedAt *time.Time          `json:"updated_at,omitempty"`
	Tasks     docstore.TaskCounts `json:"tasks"`
	Cursor    int64               `json:"cursor"`
	LatestSeq int64               `json:"latest_seq"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show the processing state of an instance",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Instance, "instance", config.Defaults().InstanceID, "instance id")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	st, err := opts.openStore()
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()
	ctx := commandContext(cmd)

	result := StatusResult{Instance: opts.Instance}
	ps, ok, err := st.GetProcessingState(ctx, opts.Instance)
	if err != nil {
		return formatter.Fail(ExitFailure, "failed to read processing state", err)
	}
	if ok {
		result.State = ps.State
		result.Message = ps.Message
		result.UpdatedAt = &ps.UpdatedAt
	}

	result.Tasks, err = taskqueue.New(st, opts.Instance+":"+backfill.QueueName).Counts(ctx)
	if err != nil {
		return formatter.Fail(ExitFailure, "failed to count tasks", err)
	}
	if result.Cursor, _, err = st.LoadCursor(ctx, opts.Instance+":trigger"); err != nil {
		return formatter.Fail(ExitFailure, "failed to read cursor", err)
	}
	if result.LatestSeq, err = st.LatestSeq(ctx); err != nil {
		return formatter.Fail(ExitFailure, "failed to read change log", err)
	}

	return formatter.SuccessText(result, statusText(result))
}

func statusText(r StatusResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "instance: %s\n", r.Instance)
	if r.State == "" {
		b.WriteString("state: (none)\n")
	} else {
		fmt.Fprintf(&b, "state: %s\n", r.State)
		fmt.Fprintf(&b, "message: %s\n", r.Message)
	}
	fmt.Fprintf(&b, "backfill tasks: %d pending, %d done, %d dead\n", r.Tasks.Pending, r.Tasks.Done, r.Tasks.Dead)
	fmt.Fprintf(&b, "change log: %d of %d handled", r.Cursor, r.LatestSeq)
	return b.String()
}
