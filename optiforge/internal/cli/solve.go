package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/optiforge/platform/optiforge/internal/models"
	"github.com/optiforge/platform/optiforge/internal/solver"
)

const defaultMaxSeconds = 5.0

// SolveOutput is a SolveResult plus the solver's diagnostic reason.
type SolveOutput struct {
	models.SolveResult
	Reason string `json:"reason,omitempty"`
}

func NewSolveCommand(rootOpts *RootOptions) *cobra.Command {
	var maxSeconds float64

	cmd := &cobra.Command{
		Use:   "solve FILE",
		Short: "Validate an IR document and solve it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			if maxSeconds <= 0 {
				return f.Failure(ExitCommandError, ErrCodeInput, "--max-seconds must be positive", nil, nil)
			}
			raw, err := loadDocument(args[0])
			if err != nil {
				return f.Failure(ExitCommandError, ErrCodeInput, err.Error(), nil, nil)
			}
			ir, failure := checkIR(raw)
			if failure != nil {
				return failure.report(f)
			}

			budget := time.Duration(maxSeconds * float64(time.Second))
			outcome := solver.NewTranslator(rootOpts.logger(cmd)).Solve(cmd.Context(), ir, budget)
			out := SolveOutput{SolveResult: outcome.Result, Reason: outcome.Reason}
			if out.Variables == nil {
				out.Variables = map[string]int64{}
			}
			render := func(w io.Writer) { printSolveResult(w, out) }

			if out.Status == models.SolveStatusUnknown {
				return f.Failure(ExitFailure, "OPTIFORGE_NO_SOLUTION", "solver returned no solution", out, render)
			}
			return f.Success(out, render)
		},
	}

	cmd.Flags().Float64Var(&maxSeconds, "max-seconds", defaultMaxSeconds, "solver wall-clock budget in seconds")
	return cmd
}

func printSolveResult(w io.Writer, out SolveOutput) {
	fmt.Fprintf(w, "status: %s\n", out.Status)
	if out.ObjectiveValue != nil {
		fmt.Fprintf(w, "objective: %d\n", *out.ObjectiveValue)
	} else {
		fmt.Fprintln(w, "objective: -")
	}
	if out.Reason != "" {
		fmt.Fprintf(w, "reason: %s\n", out.Reason)
	}
	names := make([]string, 0, len(out.Variables))
	for name := range out.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s = %d\n", name, out.Variables[name])
	}
}
