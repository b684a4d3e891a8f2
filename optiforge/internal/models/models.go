package models

import (
	"time"
)

type RunStatus string

const (
	RunStatusCreated     RunStatus = "created"
	RunStatusIRGenerated RunStatus = "ir_generated"
	RunStatusSolved      RunStatus = "solved"
	RunStatusInfeasible  RunStatus = "infeasible"
	RunStatusError       RunStatus = "error"
)

// Terminal reports whether no further lifecycle transition is possible.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSolved, RunStatusInfeasible, RunStatusError:
		return true
	}
	return false
}

type SolveStatus string

const (
	SolveStatusOptimal    SolveStatus = "optimal"
	SolveStatusFeasible   SolveStatus = "feasible"
	SolveStatusInfeasible SolveStatus = "infeasible"
	SolveStatusUnknown    SolveStatus = "unknown"
)

// HasSolution reports whether a result with this status carries an assignment.
func (s SolveStatus) HasSolution() bool {
	return s == SolveStatusOptimal || s == SolveStatusFeasible
}

type Operator string

const (
	OperatorLE Operator = "<="
	OperatorGE Operator = ">="
	OperatorEQ Operator = "="
)

type Sense string

const (
	SenseMinimize Sense = "minimize"
	SenseMaximize Sense = "maximize"
)

const (
	VariableTypeInt      = "int"
	ConstraintTypeLinear = "linear"
)

type LinearTerm struct {
	Var   string `json:"var"`
	Coeff int64  `json:"coeff"`
}

type Variable struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	LowerBound int64  `json:"lower_bound"`
	UpperBound int64  `json:"upper_bound"`
}

type Constraint struct {
	Type     string       `json:"type"`
	Terms    []LinearTerm `json:"terms"`
	Operator Operator     `json:"operator"`
	RHS      int64        `json:"rhs"`
}

type Objective struct {
	Sense    Sense        `json:"sense"`
	Terms    []LinearTerm `json:"terms"`
	Constant int64        `json:"constant"`
}

// OptimizationModelIR is the validated integer linear model a run solves.
type OptimizationModelIR struct {
	Version     string       `json:"version"`
	Name        string       `json:"name"`
	Description *string      `json:"description,omitempty"`
	Variables   []Variable   `json:"variables"`
	Constraints []Constraint `json:"constraints"`
	Objective   Objective    `json:"objective"`
}

// SolveResult is the normalized solver outcome. ObjectiveValue is set and
// Variables is non-empty only when Status is optimal or feasible. When several
// optima exist the assignment is one of them; only the status and the optimal
// objective value are reproducible across runs.
type SolveResult struct {
	Status         SolveStatus      `json:"status"`
	ObjectiveValue *int64           `json:"objective_value"`
	Variables      map[string]int64 `json:"variables"`
}

const (
	AuditActionCreated     = "created"
	AuditActionIRGenerated = "ir_generated"
	AuditActionSolved      = "solved"
	AuditActionError       = "error"
)

type AuditEvent struct {
	At      time.Time         `json:"at"`
	Action  string            `json:"action"`
	Details map[string]string `json:"details"`
}

// AuditLog is append-only; Metadata holds the most recent provider identity.
type AuditLog struct {
	Metadata map[string]string `json:"metadata"`
	Events   []AuditEvent      `json:"events"`
}

const (
	AuditMetaProviderName  = "provider_name"
	AuditMetaProviderModel = "provider_model"
)

func (l *AuditLog) Append(ev AuditEvent) {
	if ev.Details == nil {
		ev.Details = map[string]string{}
	}
	l.Events = append(l.Events, ev)
}

func (l *AuditLog) SetProvider(name, model string) {
	if l.Metadata == nil {
		l.Metadata = map[string]string{}
	}
	l.Metadata[AuditMetaProviderName] = name
	l.Metadata[AuditMetaProviderModel] = model
}

type RunRecord struct {
	ID            string               `json:"id"`
	Status        RunStatus            `json:"status"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	ProblemSpec   ProblemSpec          `json:"problem_spec"`
	IR            *OptimizationModelIR `json:"ir"`
	Solution      *SolveResult         `json:"solution"`
	Audit         AuditLog             `json:"audit"`
	Error         string               `json:"error,omitempty"`
	ProviderName  string               `json:"provider_name,omitempty"`
	ProviderModel string               `json:"provider_model,omitempty"`
}

// LastEvent returns the most recently appended audit event.
func (r RunRecord) LastEvent() (AuditEvent, bool) {
	if len(r.Audit.Events) == 0 {
		return AuditEvent{}, false
	}
	return r.Audit.Events[len(r.Audit.Events)-1], true
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (r RunRecord) Clone() RunRecord {
	out := r
	out.ProblemSpec = r.ProblemSpec.Clone()
	if r.IR != nil {
		ir := r.IR.Clone()
		out.IR = &ir
	}
	if r.Solution != nil {
		sol := r.Solution.Clone()
		out.Solution = &sol
	}
	out.Audit = r.Audit.Clone()
	return out
}

func (l AuditLog) Clone() AuditLog {
	out := AuditLog{Metadata: copyStrings(l.Metadata)}
	if l.Events != nil {
		out.Events = make([]AuditEvent, len(l.Events))
		for i, ev := range l.Events {
			out.Events[i] = AuditEvent{At: ev.At, Action: ev.Action, Details: copyStrings(ev.Details)}
		}
	}
	return out
}

func (ir OptimizationModelIR) Clone() OptimizationModelIR {
	out := ir
	if ir.Description != nil {
		d := *ir.Description
		out.Description = &d
	}
	out.Variables = append([]Variable(nil), ir.Variables...)
	if ir.Constraints != nil {
		out.Constraints = make([]Constraint, len(ir.Constraints))
		for i, c := range ir.Constraints {
			c.Terms = append([]LinearTerm(nil), c.Terms...)
			out.Constraints[i] = c
		}
	}
	out.Objective.Terms = append([]LinearTerm(nil), ir.Objective.Terms...)
	return out
}

func (s SolveResult) Clone() SolveResult {
	out := s
	if s.ObjectiveValue != nil {
		v := *s.ObjectiveValue
		out.ObjectiveValue = &v
	}
	if s.Variables != nil {
		out.Variables = make(map[string]int64, len(s.Variables))
		for k, v := range s.Variables {
			out.Variables[k] = v
		}
	}
	return out
}

func copyStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
