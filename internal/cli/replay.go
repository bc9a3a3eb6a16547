package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tillworks/basketd/internal/basket"
	"github.com/tillworks/basketd/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Trace    bool
	Currency string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <journal.db>",
		Short: "Rebuild session state from the action journal",
		Long: `Re-reduce the journal in sequence order and print the rebuilt state.

The rebuilt basket is checked against the total-amount invariant; a journal
whose stored total diverges from the sum of its line subtotals exits 1.

Example:
  basketd replay /var/lib/basketd/journal.db
  basketd replay ./journal.db --trace --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "print every journaled action, not just the final state")
	cmd.Flags().StringVar(&opts.Currency, "currency", "EUR", "currency code for the rebuilt total")

	return cmd
}

// replaySummary is the replay command's output payload.
type replaySummary struct {
	Actions int              `json:"actions"`
	LastSeq int64            `json:"last_seq"`
	Total   string           `json:"total"`
	State   any              `json:"state"`
	Trace   []replayTraceRow `json:"trace,omitempty"`
}

type replayTraceRow struct {
	Seq   int64  `json:"seq"`
	Token string `json:"token"`
	Kind  string `json:"kind"`
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	jrnl, err := journal.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer jrnl.Close()

	result, err := journal.Replay(context.Background(), jrnl)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay journal", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	var total basket.Money
	if result.Final.Basket != nil {
		total = result.Final.Basket.TotalAmount
	}

	summary := replaySummary{
		Actions: len(result.Steps),
		LastSeq: result.LastSeq,
		Total:   out.Amount(total, opts.Currency),
		State:   result.Final,
	}
	if opts.Trace {
		for _, step := range result.Steps {
			summary.Trace = append(summary.Trace, replayTraceRow{
				Seq:   step.Entry.Seq,
				Token: step.Entry.Token,
				Kind:  step.Entry.Kind,
			})
		}
	}

	if opts.Format == "json" {
		if err := out.Success(summary); err != nil {
			return err
		}
	} else {
		if opts.Trace {
			for _, row := range summary.Trace {
				fmt.Fprintf(cmd.OutOrStdout(), "%6d  %-24s %s\n", row.Seq, row.Kind, row.Token)
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "replayed %d actions (last seq %d, total %s)\n", summary.Actions, summary.LastSeq, summary.Total)
		encoded, err := json.MarshalIndent(result.Final, "", "  ")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to render state", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	}

	if err := result.VerifyTotal(); err != nil {
		_ = out.Error("DIVERGED", "journal replay diverged", err.Error())
		return NewExitError(ExitFailure, "journal replay diverged: "+err.Error())
	}
	return nil
}
