package solver

import (
	"context"
)

// OracleStatus is the terminal status an Oracle reports. Oracles may report
// values outside the constants below; the Translator maps those to unknown.
type OracleStatus string

const (
	OracleOptimal      OracleStatus = "OPTIMAL"
	OracleFeasible     OracleStatus = "FEASIBLE"
	OracleInfeasible   OracleStatus = "INFEASIBLE"
	OracleModelInvalid OracleStatus = "MODEL_INVALID"
	OracleUnknown      OracleStatus = "UNKNOWN"
)

// OracleResult carries one value per formulation variable, in formulation
// order, when Status is OracleOptimal or OracleFeasible. Objective includes
// the objective constant. Detail is free text for diagnostics.
type OracleResult struct {
	Status    OracleStatus
	Objective int64
	Values    []int64
	Detail    string
}

// Oracle solves a Formulation. Implementations must honour the deadline of
// ctx and return the best solution found so far when it passes.
type Oracle interface {
	Solve(ctx context.Context, f Formulation) (OracleResult, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, f Formulation) (OracleResult, error)

func (fn OracleFunc) Solve(ctx context.Context, f Formulation) (OracleResult, error) {
	return fn(ctx, f)
}
