package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/optiforge/platform/optiforge/internal/irschema"
	"github.com/optiforge/platform/optiforge/internal/irsemantic"
	"github.com/optiforge/platform/optiforge/internal/models"
	"github.com/optiforge/platform/optiforge/internal/service"
)

// ValidationIssue is one schema violation or semantic rule failure.
type ValidationIssue struct {
	Stage   string `json:"stage"`
	Rule    string `json:"rule,omitempty"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

type ModelSummary struct {
	Name        string `json:"name"`
	Variables   int    `json:"variables"`
	Constraints int    `json:"constraints"`
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Model  *ModelSummary     `json:"model,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check an IR document against the schema and the semantic rules",
		Long: `Validate an OptimizationModelIR document (JSON, or YAML by extension).

Schema violations are all reported with their document paths. Semantic
rules run only on a schema-valid document and stop at the first rule
that fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			raw, err := loadDocument(args[0])
			if err != nil {
				return f.Failure(ExitCommandError, ErrCodeInput, err.Error(), nil, nil)
			}
			ir, failure := checkIR(raw)
			if failure != nil {
				return failure.report(f)
			}
			summary := summarize(ir)
			return f.Success(ValidationResult{Valid: true, Model: &summary}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s is valid (%d variables, %d constraints)\n", summary.Name, summary.Variables, summary.Constraints)
			})
		},
	}
}

// irFailure is a validation failure ready to print.
type irFailure struct {
	code   string
	issues []ValidationIssue
}

func (e *irFailure) report(f *OutputFormatter) error {
	message := fmt.Sprintf("validation failed with %d error(s)", len(e.issues))
	return f.Failure(ExitFailure, e.code, message, ValidationResult{Errors: e.issues}, func(w io.Writer) {
		fmt.Fprintln(w, "✗ Validation failed")
		fmt.Fprintln(w)
		for _, issue := range e.issues {
			label := issue.Stage
			if issue.Rule != "" {
				label = issue.Rule
			}
			fmt.Fprintf(w, "  [%s] %s: %s\n", label, issue.Path, issue.Message)
		}
	})
}

// checkIR runs the schema and then the semantic validator on raw.
func checkIR(raw []byte) (models.OptimizationModelIR, *irFailure) {
	schema, err := irschema.New()
	if err != nil {
		return models.OptimizationModelIR{}, &irFailure{
			code:   service.Code(service.ErrSchemaInvalid),
			issues: []ValidationIssue{{Stage: "schema", Path: irschema.RootPath, Message: err.Error()}},
		}
	}
	if violations := schema.Validate(raw); len(violations) > 0 {
		issues := make([]ValidationIssue, 0, len(violations))
		for _, v := range violations {
			issues = append(issues, ValidationIssue{Stage: "schema", Path: v.Path, Message: v.Message})
		}
		return models.OptimizationModelIR{}, &irFailure{code: service.Code(service.ErrSchemaInvalid), issues: issues}
	}

	ir, err := irsemantic.Validate(raw)
	if err != nil {
		failure := &irFailure{code: service.Code(service.ErrSemanticInvalid)}
		var verr *irsemantic.ValidationError
		if errors.As(err, &verr) {
			for _, issue := range verr.Issues {
				failure.issues = append(failure.issues, ValidationIssue{
					Stage:   "semantic",
					Rule:    string(issue.Rule),
					Path:    issue.Path,
					Message: issue.Message,
				})
			}
		}
		if len(failure.issues) == 0 {
			failure.issues = []ValidationIssue{{Stage: "semantic", Path: irschema.RootPath, Message: err.Error()}}
		}
		return models.OptimizationModelIR{}, failure
	}
	return ir, nil
}

func summarize(ir models.OptimizationModelIR) ModelSummary {
	return ModelSummary{Name: ir.Name, Variables: len(ir.Variables), Constraints: len(ir.Constraints)}
}
