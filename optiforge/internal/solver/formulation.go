// Package solver translates a validated OptimizationModelIR into an integer
// linear formulation, hands it to an Oracle under a wall-clock budget, and
// maps the oracle's answer back into a models.SolveResult.
//
// Everything is integer valued. Coefficients, bounds, right-hand sides and
// the objective constant are int64 and no continuous relaxation is exposed.
//
// Two solves of the same IR with an ample budget return the same status and,
// when optimal, the same objective value. The variable assignment is not
// guaranteed to be the same when the model has several optimal solutions.
package solver

import (
	"errors"
	"fmt"

	"github.com/optiforge/platform/optiforge/internal/models"
)

var (
	// ErrUnsupportedOperator is returned by Translate for any operator other
	// than <=, >= and =. Validated IR never carries one.
	ErrUnsupportedOperator = errors.New("unsupported constraint operator")
	ErrUnknownVariable     = errors.New("term references undeclared variable")
	ErrUnsupportedSense    = errors.New("unsupported objective sense")
)

type Relation int

const (
	RelLE Relation = iota
	RelGE
	RelEQ
)

func (r Relation) String() string {
	switch r {
	case RelLE:
		return "<="
	case RelGE:
		return ">="
	case RelEQ:
		return "="
	}
	return fmt.Sprintf("Relation(%d)", int(r))
}

// IntVar is a bounded integer decision variable.
type IntVar struct {
	Name string
	Lo   int64
	Hi   int64
}

// Term is a coefficient applied to the variable at index Var.
type Term struct {
	Var   int
	Coeff int64
}

type LinearConstraint struct {
	Terms []Term
	Rel   Relation
	RHS   int64
}

type Objective struct {
	Terms    []Term
	Constant int64
	Maximize bool
}

// Formulation is the solver-native model. Variable order follows the IR.
type Formulation struct {
	Vars        []IntVar
	Constraints []LinearConstraint
	Objective   Objective
}

// Translate builds a Formulation from ir. Terms on the same variable within
// one expression are merged. It fails fast on an operator or sense it does
// not know instead of dropping the constraint.
func Translate(ir models.OptimizationModelIR) (Formulation, error) {
	f := Formulation{Vars: make([]IntVar, 0, len(ir.Variables))}
	index := make(map[string]int, len(ir.Variables))
	for _, v := range ir.Variables {
		index[v.Name] = len(f.Vars)
		f.Vars = append(f.Vars, IntVar{Name: v.Name, Lo: v.LowerBound, Hi: v.UpperBound})
	}

	for i, c := range ir.Constraints {
		rel, err := relationFor(c.Operator)
		if err != nil {
			return Formulation{}, fmt.Errorf("constraint %d: %w", i, err)
		}
		terms, err := linearTerms(index, c.Terms)
		if err != nil {
			return Formulation{}, fmt.Errorf("constraint %d: %w", i, err)
		}
		f.Constraints = append(f.Constraints, LinearConstraint{Terms: terms, Rel: rel, RHS: c.RHS})
	}

	terms, err := linearTerms(index, ir.Objective.Terms)
	if err != nil {
		return Formulation{}, fmt.Errorf("objective: %w", err)
	}
	f.Objective = Objective{Terms: terms, Constant: ir.Objective.Constant}
	switch ir.Objective.Sense {
	case models.SenseMinimize:
	case models.SenseMaximize:
		f.Objective.Maximize = true
	default:
		return Formulation{}, fmt.Errorf("%w: %q", ErrUnsupportedSense, ir.Objective.Sense)
	}
	return f, nil
}

func relationFor(op models.Operator) (Relation, error) {
	switch op {
	case models.OperatorLE:
		return RelLE, nil
	case models.OperatorGE:
		return RelGE, nil
	case models.OperatorEQ:
		return RelEQ, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedOperator, op)
}

func linearTerms(index map[string]int, in []models.LinearTerm) ([]Term, error) {
	out := make([]Term, 0, len(in))
	pos := make(map[int]int, len(in))
	for _, t := range in {
		idx, ok := index[t.Var]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownVariable, t.Var)
		}
		if p, seen := pos[idx]; seen {
			sum, ok := addChecked(out[p].Coeff, t.Coeff)
			if !ok {
				return nil, fmt.Errorf("coefficient of %q overflows int64", t.Var)
			}
			out[p].Coeff = sum
			continue
		}
		pos[idx] = len(out)
		out = append(out, Term{Var: idx, Coeff: t.Coeff})
	}
	return out, nil
}
