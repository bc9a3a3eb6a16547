package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tillworks/basketd/internal/config"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.yaml>",
		Short: "Check a terminal config file against the schema",
		Long: `Validate the YAML configuration against the terminal config schema.

Violations are reported with their file positions. An invalid config exits 1.

Example:
  basketd validate /etc/basketd/terminal.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read config", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	violations := config.Validate(path, data)
	if len(violations) == 0 {
		if err := out.Success(map[string]any{"file": path, "valid": true}); err != nil {
			return err
		}
		return nil
	}

	if opts.Format == "json" {
		_ = out.Error("INVALID_CONFIG", fmt.Sprintf("%d violation(s)", len(violations)), violations)
	} else {
		for _, v := range violations {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", v.Path, v.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%s: %d validation error(s)", path, len(violations)))
}
