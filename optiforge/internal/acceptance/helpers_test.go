package acceptance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/optiforge/platform/optiforge/internal/models"
	"github.com/optiforge/platform/optiforge/internal/solver"
)

type staticGenerator json.RawMessage

func (g staticGenerator) Name() string  { return "static" }
func (g staticGenerator) Model() string { return "static-1" }
func (g staticGenerator) GenerateIR(ctx context.Context, spec models.ProblemSpec) (json.RawMessage, error) {
	return json.RawMessage(g), nil
}

type failingGenerator struct{}

func (failingGenerator) Name() string  { return "down" }
func (failingGenerator) Model() string { return "down-1" }
func (failingGenerator) GenerateIR(ctx context.Context, spec models.ProblemSpec) (json.RawMessage, error) {
	return nil, errors.New("upstream returned 503 after 3 attempts")
}

type solverFunc func(ctx context.Context, ir models.OptimizationModelIR, budget time.Duration) solver.Outcome

func (f solverFunc) Solve(ctx context.Context, ir models.OptimizationModelIR, budget time.Duration) solver.Outcome {
	return f(ctx, ir, budget)
}

func countingSolver(calls *int) solverFunc {
	return func(ctx context.Context, ir models.OptimizationModelIR, budget time.Duration) solver.Outcome {
		*calls++
		return solver.Outcome{Result: models.SolveResult{Status: models.SolveStatusUnknown}}
	}
}
