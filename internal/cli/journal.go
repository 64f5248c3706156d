package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/siniverse/taskbox/internal/journal"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Box string
}

// NewJournalCommand creates the journal command, which dumps the SQLite
// transition journal written by `run --journal`.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal <db-path>",
		Short: "Dump recorded runner transitions",
		Long: `List the transition events recorded by a prop run with --journal.

Example:
  taskbox journal ./taskbox.db
  taskbox journal ./taskbox.db --box myid --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Box, "box", "", "filter events to one box id")

	return cmd
}

// journalEntry is the JSON shape of one dumped event.
type journalEntry struct {
	Seq     int64  `json:"seq"`
	Session string `json:"session"`
	At      string `json:"at"`
	Kind    string `json:"kind"`
	Box     string `json:"box"`
	Version int64  `json:"version"`
	Detail  string `json:"detail,omitempty"`
}

func runJournal(opts *JournalOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	j, err := journal.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening journal", err)
	}
	defer j.Close()

	events, err := j.Events(cmd.Context(), opts.Box)
	if err != nil {
		return WrapExitError(ExitFailure, "reading journal", err)
	}

	if opts.Format == "json" {
		entries := make([]journalEntry, len(events))
		for i, e := range events {
			entries[i] = journalEntry{
				Seq:     e.Seq,
				Session: e.Session,
				At:      e.At.Format(time.RFC3339Nano),
				Kind:    e.Kind,
				Box:     e.BoxID,
				Version: e.Version,
				Detail:  e.Detail,
			}
		}
		return formatter.Success(entries)
	}

	if len(events) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no events recorded")
		return nil
	}
	for _, e := range events {
		line := fmt.Sprintf("%6d  %s  %-14s  %s  v%d",
			e.Seq, e.At.Format(time.RFC3339), e.Kind, e.BoxID, e.Version)
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
