package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Schema string
}

// NewValidateCommand creates the validate command for state documents.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <state-file>",
		Short: "Validate a state document",
		Long: `Validate an initial-state document (.json or .cue).

The document must evaluate to a single concrete JSON object. With
--schema, the document is additionally unified against a CUE schema.

Example:
  taskbox validate initial.json
  taskbox validate initial.cue --schema drift-schema.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema to validate against")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	doc, err := ValidateStateFile(path, opts.Schema)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			if loadErr.Code == ErrCodeNotFound {
				return NewExitError(ExitCommandError, loadErr.Message)
			}
			return NewExitError(ExitFailure, loadErr.Message)
		}
		return WrapExitError(ExitFailure, "validation failed", err)
	}

	formatter.VerboseLog("validated %s (%d top-level fields)", path, len(doc))
	return formatter.Success(fmt.Sprintf("%s is valid", path))
}
