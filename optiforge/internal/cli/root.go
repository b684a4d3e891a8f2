package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/optiforge/platform/optiforge/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format   string // "json" | "text"
	LogLevel string
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the optiforge command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "optiforge",
		Short: "Validate, solve and run integer optimization models",
		Long: `optiforge checks OptimizationModelIR documents, solves them with the
built-in integer solver, and drives problem statements through the full
create, generate and solve pipeline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if _, err := logging.ParseLevel(opts.LogLevel); err != nil {
				return WrapExitError(ExitCommandError, "invalid log level", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "WARN", "log level for diagnostics on stderr")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewSolveCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}

func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	return logging.New(o.LogLevel, cmd.ErrOrStderr())
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}
