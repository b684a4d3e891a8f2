package solver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/optiforge/platform/optiforge/internal/models"
)

// Reasons reported alongside a result without a solution.
const (
	ReasonTimeout      = "timeout"
	ReasonInfeasible   = "infeasible"
	ReasonModelInvalid = "model invalid"
	ReasonOracleError  = "oracle error"
)

// DefaultGrace is how long Solve keeps waiting past the budget for the
// oracle to hand back the incumbent it found before the deadline.
const DefaultGrace = 200 * time.Millisecond

// Outcome is a normalized SolveResult plus a diagnostic reason. Reason is
// empty for optimal results and names the cause otherwise.
type Outcome struct {
	Result models.SolveResult
	Reason string
}

// Translator solves validated IR through an Oracle. It never returns an
// error: every failure becomes a result with status unknown.
type Translator struct {
	Oracle Oracle
	Grace  time.Duration
	Logger *slog.Logger
}

// NewTranslator returns a Translator backed by the built-in BranchAndBound
// oracle.
func NewTranslator(logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{Oracle: &BranchAndBound{}, Grace: DefaultGrace, Logger: logger}
}

type oracleReply struct {
	res OracleResult
	err error
}

// Solve translates ir, runs the oracle under budget, and maps the answer.
// A status the oracle reports outside the known set becomes unknown.
func (t *Translator) Solve(ctx context.Context, ir models.OptimizationModelIR, budget time.Duration) Outcome {
	logger := t.logger().With("model", ir.Name)

	f, err := Translate(ir)
	if err != nil {
		logger.Warn("translate model", "error", err)
		return unknown(fmt.Sprintf("%s: %v", ReasonModelInvalid, err))
	}
	if t.Oracle == nil {
		return unknown(ReasonOracleError + ": no oracle configured")
	}

	solveCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	grace := t.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	hardStop := time.NewTimer(budget + grace)
	defer hardStop.Stop()

	replies := make(chan oracleReply, 1)
	started := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				replies <- oracleReply{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := t.Oracle.Solve(solveCtx, f)
		replies <- oracleReply{res: res, err: err}
	}()

	var reply oracleReply
	select {
	case reply = <-replies:
	case <-hardStop.C:
		logger.Warn("oracle did not return within budget", "budget", budget)
		return unknown(ReasonTimeout)
	case <-ctx.Done():
		return unknown(fmt.Sprintf("%s: %v", ReasonTimeout, ctx.Err()))
	}
	if reply.err != nil {
		logger.Error("oracle failed", "error", reply.err)
		return unknown(fmt.Sprintf("%s: %v", ReasonOracleError, reply.err))
	}

	out := t.normalize(f, reply.res)
	logger.Debug("model solved",
		"oracle_status", string(reply.res.Status),
		"status", string(out.Result.Status),
		"elapsed", time.Since(started),
	)
	return out
}

func (t *Translator) normalize(f Formulation, res OracleResult) Outcome {
	switch res.Status {
	case OracleOptimal, OracleFeasible:
		if len(res.Values) != len(f.Vars) {
			return unknown(fmt.Sprintf("%s: %d values for %d variables", ReasonOracleError, len(res.Values), len(f.Vars)))
		}
		vars := make(map[string]int64, len(f.Vars))
		for i, v := range f.Vars {
			vars[v.Name] = res.Values[i]
		}
		obj := res.Objective
		out := Outcome{Result: models.SolveResult{Status: models.SolveStatusOptimal, ObjectiveValue: &obj, Variables: vars}}
		if res.Status == OracleFeasible {
			out.Result.Status = models.SolveStatusFeasible
			out.Reason = withDetail(ReasonTimeout, res.Detail)
		}
		return out
	case OracleInfeasible:
		return Outcome{
			Result: models.SolveResult{Status: models.SolveStatusInfeasible, Variables: map[string]int64{}},
			Reason: ReasonInfeasible,
		}
	case OracleModelInvalid:
		return unknown(withDetail(ReasonModelInvalid, res.Detail))
	case OracleUnknown:
		return unknown(withDetail(ReasonTimeout, res.Detail))
	default:
		return unknown(fmt.Sprintf("%s: unrecognized status %q", ReasonOracleError, res.Status))
	}
}

func (t *Translator) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

func unknown(reason string) Outcome {
	return Outcome{
		Result: models.SolveResult{Status: models.SolveStatusUnknown, Variables: map[string]int64{}},
		Reason: reason,
	}
}

func withDetail(reason, detail string) string {
	if detail == "" {
		return reason
	}
	return reason + ": " + detail
}
