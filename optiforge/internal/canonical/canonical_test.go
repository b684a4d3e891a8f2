package canonical_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optiforge/platform/optiforge/internal/canonical"
	"github.com/optiforge/platform/optiforge/internal/models"
)

func stubIR() models.OptimizationModelIR {
	return models.OptimizationModelIR{
		Version: "1.0",
		Name:    "stub_min_cost",
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
		Objective: models.Objective{Sense: models.SenseMinimize, Terms: []models.LinearTerm{{Var: "x", Coeff: 3}, {Var: "y", Coeff: 2}}},
	}
}

func TestIRHashIgnoresGeneratorKeyOrder(t *testing.T) {
	docs := []string{
		`{"version":"1.0","name":"stub_min_cost","variables":[{"name":"x","type":"int","lower_bound":0,"upper_bound":10},{"name":"y","type":"int","lower_bound":0,"upper_bound":10}],"constraints":[{"type":"linear","terms":[{"var":"x","coeff":1},{"var":"y","coeff":1}],"operator":">=","rhs":5}],"objective":{"sense":"minimize","terms":[{"var":"x","coeff":3},{"var":"y","coeff":2}]}}`,
		`{"objective":{"terms":[{"coeff":3,"var":"x"},{"coeff":2,"var":"y"}],"sense":"minimize"},"constraints":[{"rhs":5,"operator":">=","terms":[{"coeff":1,"var":"x"},{"coeff":1,"var":"y"}],"type":"linear"}],"variables":[{"upper_bound":10,"lower_bound":0,"type":"int","name":"x"},{"upper_bound":10,"lower_bound":0,"type":"int","name":"y"}],"name":"stub_min_cost","version":"1.0"}`,
	}
	var hashes []string
	for _, doc := range docs {
		var ir models.OptimizationModelIR
		require.NoError(t, json.Unmarshal([]byte(doc), &ir))
		h, err := canonical.IRHash(ir)
		require.NoError(t, err)
		hashes = append(hashes, h)
	}
	assert.Equal(t, hashes[0], hashes[1])
	assert.Len(t, hashes[0], 64)
}

func TestIRHashChangesWithModel(t *testing.T) {
	a, err := canonical.IRHash(stubIR())
	require.NoError(t, err)

	changed := stubIR()
	changed.Constraints[0].RHS = 6
	b, err := canonical.IRHash(changed)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestRunDocumentSortsKeysAndKeepsIntegers(t *testing.T) {
	ir := stubIR()
	ir.Variables[0].LowerBound = -9007199254740993
	ir.Variables[0].UpperBound = 9007199254740993
	obj := int64(10)
	at := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	rec := models.RunRecord{
		ID:        "run-1",
		Status:    models.RunStatusSolved,
		CreatedAt: at,
		UpdatedAt: at,
		ProblemSpec: models.ProblemSpec{Text: "assign", Tables: []models.TableSpec{{
			Name:    "ids",
			Columns: []string{"id"},
			Rows:    [][]any{{json.Number("9007199254740993")}},
		}}},
		IR:       &ir,
		Solution: &models.SolveResult{Status: models.SolveStatusOptimal, ObjectiveValue: &obj, Variables: map[string]int64{"y": 5, "x": 0}},
	}

	doc, err := canonical.Run(rec)
	require.NoError(t, err)
	s := string(doc)
	assert.Contains(t, s, `"upper_bound":9007199254740993`)
	assert.Contains(t, s, `"lower_bound":-9007199254740993`)
	assert.Contains(t, s, `"rows":[[9007199254740993]]`)
	assert.Contains(t, s, `"variables":{"x":0,"y":5}`)
	assert.NotContains(t, s, " ")

	again, err := canonical.Run(rec)
	require.NoError(t, err)
	assert.Equal(t, doc, again)

	var back models.RunRecord
	require.NoError(t, json.Unmarshal(doc, &back))
	assert.Equal(t, rec.ID, back.ID)
	assert.Equal(t, *rec.IR, *back.IR)
}
