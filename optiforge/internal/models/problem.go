package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// TableSpec is a named table of cells supplied alongside the problem text.
// Cells are numbers or strings.
type TableSpec struct {
	Name    string   `json:"name" validate:"required"`
	Columns []string `json:"columns" validate:"min=1,unique"`
	Rows    [][]any  `json:"rows"`
}

// UnmarshalJSON keeps numeric cells as json.Number so integers beyond 2^53
// survive a round trip unchanged. Unknown fields are rejected.
func (t *TableSpec) UnmarshalJSON(data []byte) error {
	type plain TableSpec
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	var out plain
	if err := dec.Decode(&out); err != nil {
		return err
	}
	*t = TableSpec(out)
	return nil
}

// ProblemSpec is the user input a run is created from. It is never modified
// after the run exists.
type ProblemSpec struct {
	Text   string      `json:"text" validate:"required"`
	Tables []TableSpec `json:"tables" validate:"dive"`
}

var specValidate *validator.Validate

func init() {
	specValidate = validator.New(validator.WithRequiredStructEnabled())
	specValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// SpecError aggregates ProblemSpec invariant violations.
type SpecError struct {
	Issues []string
}

func (e *SpecError) Error() string {
	if len(e.Issues) == 0 {
		return "problem spec invalid"
	}
	return "problem spec invalid: " + strings.Join(e.Issues, "; ")
}

func (e *SpecError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *SpecError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

// Validate checks the ProblemSpec invariants: non-empty text, named tables
// with at least one unique column, and rows whose arity matches the columns.
func (p ProblemSpec) Validate() error {
	issues := &SpecError{}
	if err := specValidate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate problem spec: %w", err)
		}
		for _, fe := range verrs {
			issues.Add(describeFieldError(fe))
		}
	}
	for i, table := range p.Tables {
		for r, row := range table.Rows {
			if len(row) != len(table.Columns) {
				issues.Add(fmt.Sprintf("tables[%d].rows[%d] has %d cells, want %d (one per column)", i, r, len(row), len(table.Columns)))
				continue
			}
			for c, cell := range row {
				if !isCellValue(cell) {
					issues.Add(fmt.Sprintf("tables[%d].rows[%d][%d] must be a number or a string", i, r, c))
				}
			}
		}
	}
	return issues.OrNil()
}

// Normalize replaces absent collections with empty ones so the stored form
// serializes the same way every time.
func (p ProblemSpec) Normalize() ProblemSpec {
	out := p.Clone()
	if out.Tables == nil {
		out.Tables = []TableSpec{}
	}
	for i := range out.Tables {
		if out.Tables[i].Rows == nil {
			out.Tables[i].Rows = [][]any{}
		}
	}
	return out
}

func (p ProblemSpec) Clone() ProblemSpec {
	out := ProblemSpec{Text: p.Text}
	if p.Tables != nil {
		out.Tables = make([]TableSpec, len(p.Tables))
		for i, t := range p.Tables {
			ct := TableSpec{Name: t.Name}
			if t.Columns != nil {
				ct.Columns = append([]string{}, t.Columns...)
			}
			if t.Rows != nil {
				ct.Rows = make([][]any, len(t.Rows))
				for r, row := range t.Rows {
					if row != nil {
						ct.Rows[r] = append([]any{}, row...)
					}
				}
			}
			out.Tables[i] = ct
		}
	}
	return out
}

func isCellValue(v any) bool {
	switch v.(type) {
	case string, float64, float32, int, int32, int64, json.Number:
		return true
	}
	return false
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, fe.Param())
	case "unique":
		return field + " must be unique"
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}
