package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docpost/internal/value"
)

// DocResult is the output of the doc commands.
type DocResult struct {
	Path   string       `json:"path"`
	Exists bool         `json:"exists"`
	Data   value.Object `json:"data,omitempty"`
}

// NewDocCommand creates the doc command group.
func NewDocCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Read and write documents",
	}
	cmd.AddCommand(newDocPutCommand(rootOpts))
	cmd.AddCommand(newDocAddCommand(rootOpts))
	cmd.AddCommand(newDocGetCommand(rootOpts))
	cmd.AddCommand(newDocDeleteCommand(rootOpts))
	return cmd
}

func docCommand(use, short string, nargs int, run func(opts *RootOptions, cmd *cobra.Command, args []string) error, opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.ExactArgs(nargs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, cmd, args)
		},
	}
}

func newDocPutCommand(opts *RootOptions) *cobra.Command {
	return docCommand("put <path> <json>", "Create or replace a document", 2, runDocPut, opts)
}

func newDocAddCommand(opts *RootOptions) *cobra.Command {
	return docCommand("add <collection> <json>", "Create a document with a generated id", 2, runDocAdd, opts)
}

func newDocGetCommand(opts *RootOptions) *cobra.Command {
	return docCommand("get <path>", "Print a document", 1, runDocGet, opts)
}

func newDocDeleteCommand(opts *RootOptions) *cobra.Command {
	return docCommand("delete <path>", "Delete a document", 1, runDocDelete, opts)
}

func parseDocument(raw string) (value.Object, error) {
	obj, err := value.DecodeObject([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	return obj, nil
}

func runDocPut(opts *RootOptions, cmd *cobra.Command, args []string) error {
	formatter := opts.formatter(cmd)
	data, err := parseDocument(args[1])
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid document", err)
	}
	st, err := opts.openStore()
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if err := st.Set(commandContext(cmd), args[0], data); err != nil {
		return formatter.Fail(ExitFailure, "failed to write document", err)
	}
	return formatter.SuccessText(DocResult{Path: args[0], Exists: true}, args[0])
}

func runDocAdd(opts *RootOptions, cmd *cobra.Command, args []string) error {
	formatter := opts.formatter(cmd)
	data, err := parseDocument(args[1])
	if err != nil {
		return formatter.Fail(ExitCommandError, "invalid document", err)
	}
	st, err := opts.openStore()
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	path, err := st.Add(commandContext(cmd), args[0], data)
	if err != nil {
		return formatter.Fail(ExitFailure, "failed to add document", err)
	}
	return formatter.SuccessText(DocResult{Path: path, Exists: true}, path)
}

func runDocGet(opts *RootOptions, cmd *cobra.Command, args []string) error {
	formatter := opts.formatter(cmd)
	st, err := opts.openStore()
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	snap, err := st.Get(commandContext(cmd), args[0])
	if err != nil {
		return formatter.Fail(ExitFailure, "failed to read document", err)
	}
	if !snap.Exists {
		return formatter.Fail(ExitFailure, "failed to read document", errors.New("document not found"))
	}
	text, err := value.Marshal(snap.Data)
	if err != nil {
		return formatter.Fail(ExitFailure, "failed to encode document", err)
	}
	return formatter.SuccessText(DocResult{Path: snap.Path, Exists: true, Data: snap.Data}, string(text))
}

func runDocDelete(opts *RootOptions, cmd *cobra.Command, args []string) error {
	formatter := opts.formatter(cmd)
	st, err := opts.openStore()
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if err := st.DeleteDocument(commandContext(cmd), args[0]); err != nil {
		return formatter.Fail(ExitFailure, "failed to delete document", err)
	}
	return formatter.SuccessText(DocResult{Path: args[0]}, fmt.Sprintf("deleted %s", args[0]))
}
