// Package irsemantic turns a structurally valid IR document into a typed
// OptimizationModelIR and enforces the cross-field rules a schema cannot
// express.
package irsemantic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/optiforge/platform/optiforge/internal/models"
)

// Rule names a semantic check. Each rule yields its own error kind.
type Rule string

const (
	RuleDecode              Rule = "decode"
	RuleUniqueVariableNames Rule = "unique_variable_names"
	RuleBoundOrder          Rule = "bound_order"
	RuleTermReference       Rule = "term_reference"
)

type Issue struct {
	Rule    Rule   `json:"rule"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s at %s: %s", i.Rule, i.Path, i.Message)
}

// ValidationError lists the issues of the first rule that failed.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		parts = append(parts, i.String())
	}
	return "IR semantic validation failed: " + strings.Join(parts, "; ")
}

// Rule reports the rule that rejected the document.
func (e *ValidationError) Rule() Rule {
	if len(e.Issues) == 0 {
		return ""
	}
	return e.Issues[0].Rule
}

// Validate decodes raw strictly and applies, in order: unique variable names,
// lower_bound <= upper_bound, and that every term references a declared
// variable. Evaluation stops at the first rule with issues.
func Validate(raw []byte) (models.OptimizationModelIR, error) {
	ir, err := decode(raw)
	if err != nil {
		return models.OptimizationModelIR{}, &ValidationError{Issues: []Issue{{Rule: RuleDecode, Path: "/", Message: err.Error()}}}
	}
	return ir, Check(ir)
}

// Check applies the semantic rules to an already decoded model.
func Check(ir models.OptimizationModelIR) error {
	for _, rule := range []func(models.OptimizationModelIR) []Issue{
		uniqueNames,
		boundOrder,
		termReferences,
	} {
		if issues := rule(ir); len(issues) > 0 {
			return &ValidationError{Issues: issues}
		}
	}
	return nil
}

func decode(raw []byte) (models.OptimizationModelIR, error) {
	var ir models.OptimizationModelIR
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ir); err != nil {
		return ir, fmt.Errorf("decode ir: %w", err)
	}
	if dec.More() {
		return ir, fmt.Errorf("decode ir: trailing data after document")
	}
	if ir.Constraints == nil {
		ir.Constraints = []models.Constraint{}
	}
	return ir, nil
}

func uniqueNames(ir models.OptimizationModelIR) []Issue {
	var issues []Issue
	first := make(map[string]int, len(ir.Variables))
	for i, v := range ir.Variables {
		if j, ok := first[v.Name]; ok {
			issues = append(issues, Issue{
				Rule:    RuleUniqueVariableNames,
				Path:    fmt.Sprintf("/variables/%d/name", i),
				Message: fmt.Sprintf("variable %q already declared at /variables/%d", v.Name, j),
			})
			continue
		}
		first[v.Name] = i
	}
	return issues
}

func boundOrder(ir models.OptimizationModelIR) []Issue {
	var issues []Issue
	for i, v := range ir.Variables {
		if v.LowerBound > v.UpperBound {
			issues = append(issues, Issue{
				Rule:    RuleBoundOrder,
				Path:    fmt.Sprintf("/variables/%d", i),
				Message: fmt.Sprintf("variable %q has lower_bound %d greater than upper_bound %d", v.Name, v.LowerBound, v.UpperBound),
			})
		}
	}
	return issues
}

func termReferences(ir models.OptimizationModelIR) []Issue {
	declared := make(map[string]struct{}, len(ir.Variables))
	for _, v := range ir.Variables {
		declared[v.Name] = struct{}{}
	}
	var issues []Issue
	check := func(prefix string, terms []models.LinearTerm) {
		for t, term := range terms {
			if _, ok := declared[term.Var]; !ok {
				issues = append(issues, Issue{
					Rule:    RuleTermReference,
					Path:    fmt.Sprintf("%s/terms/%d/var", prefix, t),
					Message: fmt.Sprintf("unknown variable %q", term.Var),
				})
			}
		}
	}
	for c, con := range ir.Constraints {
		check(fmt.Sprintf("/constraints/%d", c), con.Terms)
	}
	check("/objective", ir.Objective.Terms)
	return issues
}
