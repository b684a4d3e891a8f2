package solver

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optiforge/platform/optiforge/internal/models"
)

func intVar(name string, lo, hi int64) models.Variable {
	return models.Variable{Name: name, Type: models.VariableTypeInt, LowerBound: lo, UpperBound: hi}
}

func terms(pairs ...any) []models.LinearTerm {
	out := make([]models.LinearTerm, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.LinearTerm{Var: pairs[i].(string), Coeff: int64(pairs[i+1].(int))})
	}
	return out
}

func stubIR() models.OptimizationModelIR {
	return models.OptimizationModelIR{
		Version:   "1.0",
		Name:      "stub_min_cost",
		Variables: []models.Variable{intVar("x", 0, 10), intVar("y", 0, 10)},
		Constraints: []models.Constraint{{
			Type: models.ConstraintTypeLinear, Terms: terms("x", 1, "y", 1), Operator: models.OperatorGE, RHS: 5,
		}},
		Objective: models.Objective{Sense: models.SenseMinimize, Terms: terms("x", 3, "y", 2)},
	}
}

func newTestTranslator() *Translator {
	return NewTranslator(nil)
}

func TestSolveStubModelIsOptimal(t *testing.T) {
	out := newTestTranslator().Solve(context.Background(), stubIR(), 5*time.Second)

	require.Equal(t, models.SolveStatusOptimal, out.Result.Status)
	require.NotNil(t, out.Result.ObjectiveValue)
	assert.Equal(t, int64(10), *out.Result.ObjectiveValue)
	assert.Equal(t, map[string]int64{"x": 0, "y": 5}, out.Result.Variables)
	assert.Empty(t, out.Reason)
}

func TestSolveSingleVariableWithoutConstraints(t *testing.T) {
	tests := []struct {
		name  string
		sense models.Sense
		coeff int
		want  int64
		value int64
	}{
		{name: "maximize positive", sense: models.SenseMaximize, coeff: 3, want: 3*4 + 7, value: 4},
		{name: "minimize positive", sense: models.SenseMinimize, coeff: 3, want: 3*-2 + 7, value: -2},
		{name: "minimize negative", sense: models.SenseMinimize, coeff: -2, want: -2*4 + 7, value: 4},
		{name: "maximize negative", sense: models.SenseMaximize, coeff: -2, want: -2*-2 + 7, value: -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ir := models.OptimizationModelIR{
				Version:   "1.0",
				Name:      "single",
				Variables: []models.Variable{intVar("x", -2, 4)},
				Objective: models.Objective{Sense: tt.sense, Terms: terms("x", tt.coeff), Constant: 7},
			}
			out := newTestTranslator().Solve(context.Background(), ir, time.Second)
			require.Equal(t, models.SolveStatusOptimal, out.Result.Status)
			assert.Equal(t, tt.want, *out.Result.ObjectiveValue)
			assert.Equal(t, tt.value, out.Result.Variables["x"])
		})
	}
}

func TestSolveEqualityConstraint(t *testing.T) {
	ir := models.OptimizationModelIR{
		Variables: []models.Variable{intVar("x", 0, 10), intVar("y", 0, 10)},
		Constraints: []models.Constraint{{
			Type: models.ConstraintTypeLinear, Terms: terms("x", 1, "y", -1), Operator: models.OperatorEQ, RHS: 3,
		}},
		Objective: models.Objective{Sense: models.SenseMaximize, Terms: terms("x", 1, "y", 1)},
	}
	out := newTestTranslator().Solve(context.Background(), ir, time.Second)
	require.Equal(t, models.SolveStatusOptimal, out.Result.Status)
	assert.Equal(t, int64(17), *out.Result.ObjectiveValue)
	assert.Equal(t, map[string]int64{"x": 10, "y": 7}, out.Result.Variables)
}

func TestSolveInfeasibleHasNoAssignment(t *testing.T) {
	ir := stubIR()
	ir.Constraints[0].RHS = 25

	out := newTestTranslator().Solve(context.Background(), ir, time.Second)
	assert.Equal(t, models.SolveStatusInfeasible, out.Result.Status)
	assert.Nil(t, out.Result.ObjectiveValue)
	assert.Empty(t, out.Result.Variables)
	assert.Equal(t, ReasonInfeasible, out.Reason)
}

func TestSolveIsRepeatable(t *testing.T) {
	ir := models.OptimizationModelIR{
		Variables: []models.Variable{intVar("a", 0, 6), intVar("b", 0, 6), intVar("c", 0, 6)},
		Constraints: []models.Constraint{
			{Type: models.ConstraintTypeLinear, Terms: terms("a", 2, "b", 3, "c", 1), Operator: models.OperatorLE, RHS: 12},
			{Type: models.ConstraintTypeLinear, Terms: terms("a", 1, "c", 1), Operator: models.OperatorGE, RHS: 2},
		},
		Objective: models.Objective{Sense: models.SenseMaximize, Terms: terms("a", 1, "b", 1, "c", 1)},
	}
	first := newTestTranslator().Solve(context.Background(), ir, time.Second)
	second := newTestTranslator().Solve(context.Background(), ir, time.Second)
	require.Equal(t, models.SolveStatusOptimal, first.Result.Status)
	assert.Equal(t, first.Result.Status, second.Result.Status)
	assert.Equal(t, *first.Result.ObjectiveValue, *second.Result.ObjectiveValue)
	assert.Equal(t, int64(9), *first.Result.ObjectiveValue)
}

// bruteForce enumerates every assignment of small models.
func bruteForce(ir models.OptimizationModelIR) (best int64, feasible bool) {
	values := make(map[string]int64, len(ir.Variables))
	var walk func(i int)
	walk = func(i int) {
		if i == len(ir.Variables) {
			if !satisfiesIR(ir, values) {
				return
			}
			obj := objectiveOf(ir, values)
			better := obj < best
			if ir.Objective.Sense == models.SenseMaximize {
				better = obj > best
			}
			if !feasible || better {
				best, feasible = obj, true
			}
			return
		}
		v := ir.Variables[i]
		for x := v.LowerBound; x <= v.UpperBound; x++ {
			values[v.Name] = x
			walk(i + 1)
		}
	}
	walk(0)
	return best, feasible
}

func satisfiesIR(ir models.OptimizationModelIR, values map[string]int64) bool {
	for _, c := range ir.Constraints {
		var sum int64
		for _, t := range c.Terms {
			sum += t.Coeff * values[t.Var]
		}
		switch c.Operator {
		case models.OperatorLE:
			if sum > c.RHS {
				return false
			}
		case models.OperatorGE:
			if sum < c.RHS {
				return false
			}
		case models.OperatorEQ:
			if sum != c.RHS {
				return false
			}
		}
	}
	return true
}

func objectiveOf(ir models.OptimizationModelIR, values map[string]int64) int64 {
	sum := ir.Objective.Constant
	for _, t := range ir.Objective.Terms {
		sum += t.Coeff * values[t.Var]
	}
	return sum
}

func randomIR(rng *rand.Rand) models.OptimizationModelIR {
	names := []string{"a", "b", "c"}
	ops := []models.Operator{models.OperatorLE, models.OperatorGE, models.OperatorEQ}
	ir := models.OptimizationModelIR{Version: "1.0", Name: "random"}
	n := 1 + rng.Intn(3)
	for i := 0; i < n; i++ {
		lo := int64(rng.Intn(7) - 3)
		ir.Variables = append(ir.Variables, intVar(names[i], lo, lo+int64(rng.Intn(5))))
	}
	randomTerms := func() []models.LinearTerm {
		var ts []models.LinearTerm
		for i := 0; i < n; i++ {
			ts = append(ts, models.LinearTerm{Var: names[i], Coeff: int64(rng.Intn(9) - 4)})
		}
		return ts
	}
	for c := rng.Intn(3); c > 0; c-- {
		ir.Constraints = append(ir.Constraints, models.Constraint{
			Type:     models.ConstraintTypeLinear,
			Terms:    randomTerms(),
			Operator: ops[rng.Intn(len(ops))],
			RHS:      int64(rng.Intn(11) - 5),
		})
	}
	ir.Objective = models.Objective{Sense: models.SenseMinimize, Terms: randomTerms(), Constant: int64(rng.Intn(5))}
	if rng.Intn(2) == 0 {
		ir.Objective.Sense = models.SenseMaximize
	}
	return ir
}

func TestSolveMatchesExhaustiveSearch(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tr := newTestTranslator()
	for i := 0; i < 200; i++ {
		ir := randomIR(rng)
		t.Run(fmt.Sprintf("model_%03d", i), func(t *testing.T) {
			want, feasible := bruteForce(ir)
			out := tr.Solve(context.Background(), ir, 5*time.Second)
			if !feasible {
				assert.Equal(t, models.SolveStatusInfeasible, out.Result.Status)
				return
			}
			require.Equal(t, models.SolveStatusOptimal, out.Result.Status)
			assert.Equal(t, want, *out.Result.ObjectiveValue)
			for _, v := range ir.Variables {
				got, ok := out.Result.Variables[v.Name]
				require.True(t, ok, "missing %s", v.Name)
				assert.GreaterOrEqual(t, got, v.LowerBound)
				assert.LessOrEqual(t, got, v.UpperBound)
			}
			assert.True(t, satisfiesIR(ir, out.Result.Variables), "assignment %v violates constraints", out.Result.Variables)
			assert.Equal(t, want, objectiveOf(ir, out.Result.Variables))
		})
	}
}

func TestTranslateRejectsUnsupportedOperator(t *testing.T) {
	ir := stubIR()
	ir.Constraints[0].Operator = "<"

	_, err := Translate(ir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedOperator))

	called := false
	tr := &Translator{Oracle: OracleFunc(func(ctx context.Context, f Formulation) (OracleResult, error) {
		called = true
		return OracleResult{Status: OracleOptimal}, nil
	})}
	out := tr.Solve(context.Background(), ir, time.Second)
	assert.False(t, called)
	assert.Equal(t, models.SolveStatusUnknown, out.Result.Status)
	assert.Contains(t, out.Reason, ReasonModelInvalid)
}

func TestTranslateMergesRepeatedTerms(t *testing.T) {
	ir := stubIR()
	ir.Objective.Terms = terms("x", 3, "y", 2, "x", -1)

	f, err := Translate(ir)
	require.NoError(t, err)
	assert.Equal(t, []Term{{Var: 0, Coeff: 2}, {Var: 1, Coeff: 2}}, f.Objective.Terms)
	assert.Equal(t, RelGE, f.Constraints[0].Rel)
}

func TestSolveMapsOracleStatuses(t *testing.T) {
	tests := []struct {
		name   string
		res    OracleResult
		err    error
		status models.SolveStatus
		reason string
	}{
		{name: "feasible", res: OracleResult{Status: OracleFeasible, Objective: 12, Values: []int64{1, 4}}, status: models.SolveStatusFeasible, reason: ReasonTimeout},
		{name: "model invalid", res: OracleResult{Status: OracleModelInvalid, Detail: "bad row"}, status: models.SolveStatusUnknown, reason: "model invalid: bad row"},
		{name: "unrecognized", res: OracleResult{Status: "LIMIT_REACHED"}, status: models.SolveStatusUnknown, reason: "unrecognized status"},
		{name: "oracle error", err: errors.New("license expired"), status: models.SolveStatusUnknown, reason: "oracle error: license expired"},
		{name: "value count mismatch", res: OracleResult{Status: OracleOptimal, Values: []int64{1}}, status: models.SolveStatusUnknown, reason: "1 values for 2 variables"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &Translator{Oracle: OracleFunc(func(ctx context.Context, f Formulation) (OracleResult, error) {
				return tt.res, tt.err
			})}
			out := tr.Solve(context.Background(), stubIR(), time.Second)
			assert.Equal(t, tt.status, out.Result.Status)
			assert.Contains(t, out.Reason, tt.reason)
			if tt.status == models.SolveStatusUnknown {
				assert.Nil(t, out.Result.ObjectiveValue)
				assert.Empty(t, out.Result.Variables)
			}
		})
	}
}

func TestSolveRecoversOraclePanic(t *testing.T) {
	tr := &Translator{Oracle: OracleFunc(func(ctx context.Context, f Formulation) (OracleResult, error) {
		panic("boom")
	})}
	out := tr.Solve(context.Background(), stubIR(), time.Second)
	assert.Equal(t, models.SolveStatusUnknown, out.Result.Status)
	assert.Contains(t, out.Reason, "panic: boom")
}

func TestSolveReturnsAtBudgetWhenOracleHangs(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	tr := &Translator{
		Grace: 20 * time.Millisecond,
		Oracle: OracleFunc(func(ctx context.Context, f Formulation) (OracleResult, error) {
			<-release
			return OracleResult{Status: OracleOptimal, Values: []int64{0, 5}, Objective: 10}, nil
		}),
	}

	start := time.Now()
	out := tr.Solve(context.Background(), stubIR(), 30*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, models.SolveStatusUnknown, out.Result.Status)
	assert.Equal(t, ReasonTimeout, out.Reason)
}

func TestBranchAndBoundReportsUnknownWithoutTime(t *testing.T) {
	f, err := Translate(stubIR())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := (&BranchAndBound{}).Solve(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, OracleUnknown, res.Status)
	assert.Empty(t, res.Values)
}

func TestBranchAndBoundNodeLimitKeepsIncumbent(t *testing.T) {
	f, err := Translate(stubIR())
	require.NoError(t, err)

	res, err := (&BranchAndBound{NodeLimit: 1_000_000}).Solve(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, OracleOptimal, res.Status)

	res, err = (&BranchAndBound{NodeLimit: 1}).Solve(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, OracleUnknown, res.Status)
	assert.Equal(t, "node limit reached", res.Detail)
}

func TestArithmeticHelpers(t *testing.T) {
	assert.Equal(t, int64(-2), floorDiv(-3, 2))
	assert.Equal(t, int64(-1), ceilDiv(-3, 2))
	assert.Equal(t, int64(2), ceilDiv(3, 2))
	assert.Equal(t, int64(-2), ceilDiv(5, -2))
	assert.Equal(t, int64(-3), floorDiv(5, -2))

	_, ok := mulChecked(1<<62, 4)
	assert.False(t, ok)
	_, ok = addChecked(1<<62, 1<<62)
	assert.False(t, ok)
	v, ok := subChecked(-1, -1<<63)
	assert.True(t, ok)
	assert.Equal(t, int64(1<<63-1), v)

	assert.Equal(t, int64(-1), midpoint(-2, 1))
	assert.Equal(t, int64(-1), midpoint(-1<<63, 1<<63-1))
}
