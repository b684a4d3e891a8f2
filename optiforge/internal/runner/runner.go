// Package runner drives a single run through the whole lifecycle.
package runner

import (
	"context"
	"log/slog"

	"github.com/optiforge/platform/optiforge/internal/models"
)

// Lifecycle is the subset of the service the runner needs.
type Lifecycle interface {
	Create(ctx context.Context, spec models.ProblemSpec, providerName, providerModel string) (string, error)
	Get(ctx context.Context, id string) (models.RunRecord, error)
	Generate(ctx context.Context, id string) (models.RunRecord, error)
	Solve(ctx context.Context, id string) (models.RunRecord, error)
}

type Config struct {
	ProviderName  string
	ProviderModel string
	Logger        *slog.Logger
}

// Run creates a run for spec, generates its IR and solves it. Once the run
// exists the returned record is its latest persisted snapshot, including
// when a stage fails; the stage error is returned alongside it.
func Run(ctx context.Context, lc Lifecycle, spec models.ProblemSpec, cfg Config) (models.RunRecord, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id, err := lc.Create(ctx, spec, cfg.ProviderName, cfg.ProviderModel)
	if err != nil {
		return models.RunRecord{}, err
	}
	logger.Debug("pipeline started", "run_id", id)

	if _, err := lc.Generate(ctx, id); err != nil {
		return latest(ctx, lc, id, err)
	}
	rec, err := lc.Solve(ctx, id)
	if err != nil {
		return latest(ctx, lc, id, err)
	}
	logger.Debug("pipeline finished", "run_id", id, "status", rec.Status)
	return rec, nil
}

func latest(ctx context.Context, lc Lifecycle, id string, stageErr error) (models.RunRecord, error) {
	rec, err := lc.Get(ctx, id)
	if err != nil {
		return models.RunRecord{ID: id}, stageErr
	}
	return rec, stageErr
}
