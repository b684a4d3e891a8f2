// Package irschema checks raw OptimizationModelIR documents against the
// versioned wire schema before any semantic rule runs.
//
// The schema is a CUE definition (optimization_model_ir.cue) compiled once per
// Validator. Validate never stops at the first problem: every structural
// violation is reported with a JSON Pointer to its location, ordered by path.
package irschema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed optimization_model_ir.cue
var schemaSource string

const definition = "#OptimizationModelIR"

// RootPath locates violations that concern the document as a whole.
const RootPath = "/"

// Source returns the CUE text of the IR schema, for documentation endpoints
// and tooling that want to publish it.
func Source() string {
	return schemaSource
}

// Violation is one structural problem found in a raw document.
type Violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	return v.Path + ": " + v.Message
}

// ValidationError carries every violation of a rejected document.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return "IR schema validation failed: " + strings.Join(parts, "; ")
}

// Validator holds the compiled schema. CUE values are not safe for concurrent
// evaluation, so calls are serialized.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

func New() (*Validator, error) {
	ctx := cuecontext.New()
	file := ctx.CompileString(schemaSource, cue.Filename("optimization_model_ir.cue"))
	if err := file.Err(); err != nil {
		return nil, fmt.Errorf("compile ir schema: %w", err)
	}
	schema := file.LookupPath(cue.ParsePath(definition))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("lookup %s: %w", definition, err)
	}
	return &Validator{ctx: ctx, schema: schema}, nil
}

// Validate returns all structural violations in raw, or nil when the document
// satisfies the schema. Input that is not JSON at all yields a single
// violation at RootPath.
func (v *Validator) Validate(raw []byte) []Violation {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return []Violation{{Path: RootPath, Message: fmt.Sprintf("document is not valid JSON: %v", err)}}
	}

	expr, err := cuejson.Extract("ir.json", raw)
	if err != nil {
		return []Violation{{Path: RootPath, Message: fmt.Sprintf("document is not valid JSON: %v", err)}}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	data := v.ctx.BuildExpr(expr)
	if err := data.Err(); err != nil {
		return []Violation{{Path: RootPath, Message: err.Error()}}
	}
	unified := v.schema.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		// CUE stops reporting absent required fields once a value conflicts
		// anywhere in the document, so those are found by a separate walk.
		return collect(err, missingFields(v.schema, doc, nil))
	}
	return nil
}

const msgMissing = "field is required but not present"

// missingFields walks the decoded document alongside the schema and reports
// every required field that is absent, independent of other violations.
func missingFields(schema cue.Value, doc any, at []string) []Violation {
	switch d := doc.(type) {
	case map[string]any:
		if schema.IncompleteKind()&cue.StructKind == 0 {
			return nil
		}
		iter, err := schema.Fields(cue.Optional(true))
		if err != nil {
			return nil
		}
		var out []Violation
		for iter.Next() {
			sel := iter.Selector()
			if sel.LabelType() != cue.StringLabel {
				continue
			}
			name := sel.Unquoted()
			path := append(at[:len(at):len(at)], name)
			child, ok := d[name]
			if !ok {
				if sel.ConstraintType()&cue.RequiredConstraint != 0 {
					out = append(out, Violation{Path: pointer(path), Message: msgMissing})
				}
				continue
			}
			out = append(out, missingFields(iter.Value(), child, path)...)
		}
		return out
	case []any:
		if schema.IncompleteKind()&cue.ListKind == 0 {
			return nil
		}
		var out []Violation
		for i, elem := range d {
			elemSchema := schema.LookupPath(cue.MakePath(cue.Index(i)))
			if !elemSchema.Exists() {
				elemSchema = schema.LookupPath(cue.MakePath(cue.AnyIndex))
			}
			if !elemSchema.Exists() {
				continue
			}
			out = append(out, missingFields(elemSchema, elem, append(at[:len(at):len(at)], strconv.Itoa(i)))...)
		}
		return out
	}
	return nil
}

func collect(err error, extra []Violation) []Violation {
	seen := map[Violation]struct{}{}
	var out []Violation
	add := func(vio Violation) {
		if _, dup := seen[vio]; dup {
			return
		}
		seen[vio] = struct{}{}
		out = append(out, vio)
	}
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		add(Violation{
			Path:    pointer(e.Path()),
			Message: fmt.Sprintf(format, args...),
		})
	}
	for _, vio := range extra {
		add(vio)
	}
	if len(out) == 0 {
		out = append(out, Violation{Path: RootPath, Message: err.Error()})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := comparePaths(out[i].Path, out[j].Path); c != 0 {
			return c < 0
		}
		return out[i].Message < out[j].Message
	})
	return out
}

// pointer renders CUE selectors as a JSON Pointer relative to the document,
// dropping the schema definition label CUE may prefix.
func pointer(selectors []string) string {
	segs := make([]string, 0, len(selectors))
	for _, s := range selectors {
		if strings.HasPrefix(s, "#") {
			continue
		}
		s = strings.Trim(s, `"`)
		s = strings.ReplaceAll(s, "~", "~0")
		s = strings.ReplaceAll(s, "/", "~1")
		segs = append(segs, s)
	}
	if len(segs) == 0 {
		return RootPath
	}
	return "/" + strings.Join(segs, "/")
}

func comparePaths(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "/"), "/")
	bs := strings.Split(strings.TrimPrefix(b, "/"), "/")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		ai, aerr := strconv.Atoi(as[i])
		bi, berr := strconv.Atoi(bs[i])
		if aerr == nil && berr == nil {
			if ai < bi {
				return -1
			}
			return 1
		}
		if as[i] < bs[i] {
			return -1
		}
		return 1
	}
	return len(as) - len(bs)
}
