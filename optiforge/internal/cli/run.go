package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/optiforge/platform/optiforge/internal/config"
	"github.com/optiforge/platform/optiforge/internal/models"
	"github.com/optiforge/platform/optiforge/internal/provider"
	"github.com/optiforge/platform/optiforge/internal/runner"
	"github.com/optiforge/platform/optiforge/internal/service"
	"github.com/optiforge/platform/optiforge/internal/store"
)

// Error code reported when configuration or the store cannot be set up.
const ErrCodeConfig = "OPTIFORGE_CONFIG"

type runOptions struct {
	problem  string
	database string
}

func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run --problem FILE",
		Short: "Create a run from a problem file, generate its IR and solve it",
		Long: `Run the full pipeline against the configured store and provider.

Configuration comes from OPTIFORGE_* environment variables and the optional
OPTIFORGE_CONFIG_FILE, exactly as for the service. The final run record is
printed whether or not the run solved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.problem, "problem", "", "problem spec file (JSON or YAML)")
	cmd.Flags().StringVar(&opts.database, "database", "", "database url, overrides OPTIFORGE_DATABASE_URL")
	_ = cmd.MarkFlagRequired("problem")
	return cmd
}

func runPipeline(cmd *cobra.Command, rootOpts *RootOptions, opts *runOptions) error {
	f := rootOpts.formatter(cmd)
	ctx := cmd.Context()
	logger := rootOpts.logger(cmd)

	raw, err := loadDocument(opts.problem)
	if err != nil {
		return f.Failure(ExitCommandError, ErrCodeInput, err.Error(), nil, nil)
	}
	var spec models.ProblemSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return f.Failure(ExitCommandError, ErrCodeInput, fmt.Sprintf("decode problem spec: %v", err), nil, nil)
	}

	cfg, err := config.Load()
	if err != nil {
		return f.Failure(ExitCommandError, ErrCodeConfig, err.Error(), nil, nil)
	}
	if opts.database != "" {
		cfg.DatabaseURL = opts.database
	}
	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return f.Failure(ExitCommandError, ErrCodeConfig, err.Error(), nil, nil)
	}
	defer st.Close()

	gen, err := provider.New(provider.Config{
		Name:    cfg.Provider,
		Model:   cfg.ProviderModel,
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.ProviderAPIKey,
		Timeout: cfg.ProviderTimeout(),
		Retries: cfg.ProviderRetries,
	})
	if err != nil {
		return f.Failure(ExitCommandError, ErrCodeConfig, err.Error(), nil, nil)
	}
	svc, err := service.New(service.Options{
		Store:       st,
		Generator:   gen,
		SolveBudget: cfg.SolverBudget(),
		Logger:      logger,
	})
	if err != nil {
		return f.Failure(ExitCommandError, ErrCodeConfig, err.Error(), nil, nil)
	}

	rec, err := runner.Run(ctx, svc, spec, runner.Config{Logger: logger})
	render := func(w io.Writer) { printRun(w, rec) }
	switch {
	case err != nil && rec.ID == "":
		return f.Failure(ExitFailure, service.Code(err), err.Error(), nil, nil)
	case err != nil:
		return f.Failure(ExitFailure, service.Code(err), err.Error(), rec, render)
	case rec.Status == models.RunStatusError:
		return f.Failure(ExitFailure, "OPTIFORGE_NO_SOLUTION", rec.Error, rec, render)
	}
	return f.Success(rec, render)
}

func printRun(w io.Writer, rec models.RunRecord) {
	fmt.Fprintf(w, "run %s: %s\n", rec.ID, rec.Status)
	if rec.Error != "" {
		fmt.Fprintf(w, "error: %s\n", rec.Error)
	}
	if rec.Solution != nil {
		printSolveResult(w, SolveOutput{SolveResult: *rec.Solution})
	}
}
