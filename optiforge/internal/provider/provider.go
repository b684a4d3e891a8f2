// Package provider holds the generators that turn a ProblemSpec into a raw IR
// document. The service treats every generator failure as an opaque message.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/optiforge/platform/optiforge/internal/models"
)

const (
	NameStub   = "stub"
	NameOpenAI = "openai"
)

// Generator produces an unvalidated IR document for a problem.
type Generator interface {
	Name() string
	Model() string
	GenerateIR(ctx context.Context, spec models.ProblemSpec) (json.RawMessage, error)
}

type Config struct {
	Name       string
	Model      string
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Retries    int
	Backoff    time.Duration
	HTTPClient *http.Client
}

// New selects the generator named by cfg.Name.
func New(cfg Config) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "", NameStub:
		return NewStub(cfg.Model), nil
	case NameOpenAI:
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

// Stub always returns the same small minimum-cost model, independent of
// the problem it is given.
type Stub struct {
	model string
}

func NewStub(model string) *Stub {
	if model == "" {
		model = "stub-model"
	}
	return &Stub{model: model}
}

func (s *Stub) Name() string  { return NameStub }
func (s *Stub) Model() string { return s.model }

func (s *Stub) GenerateIR(ctx context.Context, spec models.ProblemSpec) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	desc := "Deterministic stub IR"
	ir := models.OptimizationModelIR{
		Version:     "1.0",
		Name:        "stub_min_cost",
		Description: &desc,
		Variables: []models.Variable{
			{Name: "x", Type: models.VariableTypeInt, LowerBound: 0, UpperBound: 10},
			{Name: "y", Type: models.VariableTypeInt, LowerBound: 0, UpperBound: 10},
		},
		Constraints: []models.Constraint{{
			Type:     models.ConstraintTypeLinear,
			Terms:    []models.LinearTerm{{Var: "x", Coeff: 1}, {Var: "y", Coeff: 1}},
			Operator: models.OperatorGE,
			RHS:      5,
		}},
		Objective: models.Objective{
			Sense: models.SenseMinimize,
			Terms: []models.LinearTerm{{Var: "x", Coeff: 3}, {Var: "y", Coeff: 2}},
		},
	}
	raw, err := json.Marshal(ir)
	if err != nil {
		return nil, fmt.Errorf("stub marshal ir: %w", err)
	}
	return raw, nil
}
