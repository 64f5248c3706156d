package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/siniverse/taskbox/internal/replica"
	"github.com/siniverse/taskbox/internal/transport"
)

// InjectOptions holds flags for the inject command.
type InjectOptions struct {
	*RootOptions
	ID        string
	StateFile string
}

// NewInjectCommand creates the inject command, which simulates an external
// backend edit for a prop running with --mock.
func NewInjectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InjectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inject [json]",
		Short: "Inject a state document into a mock backend",
		Long: `Write a state document to the mock backend's injection file.

A prop running with --mock and the same --id picks the document up on its
next poll and treats it as an external backend edit. The document comes
from the argument, or from --state-file.

Example:
  taskbox inject --id myid '{"number": 7}'
  taskbox inject --id myid --state-file preset.cue`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInject(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "backend box id (required)")
	_ = cmd.MarkFlagRequired("id")
	cmd.Flags().StringVar(&opts.StateFile, "state-file", "", "state document to inject (.json or .cue)")

	return cmd
}

func runInject(opts *InjectOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var doc replica.Document
	var err error
	switch {
	case opts.StateFile != "" && len(args) > 0:
		return NewExitError(ExitCommandError, "pass either a JSON argument or --state-file, not both")
	case opts.StateFile != "":
		if doc, err = LoadStateFile(opts.StateFile); err != nil {
			return WrapExitError(ExitCommandError, "loading state file", err)
		}
	case len(args) > 0:
		if doc, err = replica.ParseDocument([]byte(args[0])); err != nil {
			return WrapExitError(ExitCommandError, "parsing document argument", err)
		}
	default:
		return NewExitError(ExitCommandError, "a JSON argument or --state-file is required")
	}

	data, err := replica.MarshalCanonical(doc)
	if err != nil {
		return WrapExitError(ExitCommandError, "serializing document", err)
	}

	file := transport.MockStateFile(opts.ID)
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return WrapExitError(ExitFailure, "writing injection file", err)
	}

	return formatter.Success(fmt.Sprintf("wrote %s", file))
}
