package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/optiforge/platform/optiforge/internal/audit"
	"github.com/optiforge/platform/optiforge/internal/canonical"
	"github.com/optiforge/platform/optiforge/internal/irschema"
	"github.com/optiforge/platform/optiforge/internal/irsemantic"
	"github.com/optiforge/platform/optiforge/internal/metrics"
	"github.com/optiforge/platform/optiforge/internal/models"
	"github.com/optiforge/platform/optiforge/internal/provider"
	"github.com/optiforge/platform/optiforge/internal/solver"
	"github.com/optiforge/platform/optiforge/internal/store"
)

const (
	defaultSolveBudget = 5 * time.Second
	sinkTimeout        = 10 * time.Second
)

// Stages recorded on error audit events.
const (
	StageGenerate = "generate"
	StageSchema   = "schema_validation"
	StageSemantic = "semantic_validation"
	StageSolve    = "solve"
)

// Solver is the translation boundary the lifecycle depends on.
type Solver interface {
	Solve(ctx context.Context, ir models.OptimizationModelIR, budget time.Duration) solver.Outcome
}

type Options struct {
	Store     store.Store
	Generator provider.Generator
	Schema    *irschema.Validator
	Solver    Solver
	// SolveBudget is the wall-clock limit handed to the solver.
	SolveBudget time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	// Sink and Archiver are optional.
	Sink     audit.Sink
	Archiver audit.Archiver
	Now      func() time.Time
}

// Service is the run lifecycle manager and the only writer of run records.
//
// Operations on one run id are not serialized: two concurrent generate or
// solve calls on the same run can interleave their read-modify-write cycles.
// Callers are expected to drive a run from a single writer.
type Service struct {
	store     store.Store
	generator provider.Generator
	schema    *irschema.Validator
	solver    Solver
	budget    time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	sink      audit.Sink
	archiver  audit.Archiver
	now       func() time.Time
}

func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("service: store required")
	}
	if opts.Generator == nil {
		return nil, errors.New("service: generator required")
	}
	s := &Service{
		store:     opts.Store,
		generator: opts.Generator,
		schema:    opts.Schema,
		solver:    opts.Solver,
		budget:    opts.SolveBudget,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		sink:      opts.Sink,
		archiver:  opts.Archiver,
		now:       opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.schema == nil {
		v, err := irschema.New()
		if err != nil {
			return nil, err
		}
		s.schema = v
	}
	if s.solver == nil {
		s.solver = solver.NewTranslator(s.logger)
	}
	if s.budget <= 0 {
		s.budget = defaultSolveBudget
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// Create validates spec and persists a new run in state created. Empty
// provider fields default to the configured generator.
func (s *Service) Create(ctx context.Context, spec models.ProblemSpec, providerName, providerModel string) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", newRunError(ErrInvalidInput, "", err.Error())
	}
	if providerName == "" {
		providerName = s.generator.Name()
	}
	if providerModel == "" {
		providerModel = s.generator.Model()
	}
	now := s.now()
	rec := models.RunRecord{
		Status:        models.RunStatusCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
		ProblemSpec:   spec.Normalize(),
		ProviderName:  providerName,
		ProviderModel: providerModel,
	}
	rec.Audit.SetProvider(providerName, providerModel)
	rec.Audit.Append(models.AuditEvent{At: now, Action: models.AuditActionCreated})

	id, err := s.store.CreateRun(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	rec.ID = id
	s.metrics.RunCreated()
	s.metrics.Transition(string(rec.Status))
	s.logger.Info("run created", "run_id", id, "status", rec.Status, "provider", providerName)
	s.emit(ctx, rec)
	return id, nil
}

// Get returns the latest persisted snapshot of a run.
func (s *Service) Get(ctx context.Context, id string) (models.RunRecord, error) {
	rec, err := s.store.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.RunRecord{}, newRunError(ErrNotFound, id, fmt.Sprintf("run %s not found", id))
		}
		return models.RunRecord{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return rec, nil
}

// Generate asks the generator for an IR, validates it against the schema and
// then the semantic rules, and moves the run to ir_generated. Only runs in
// state created can be generated; a failed stage moves the run to error and
// the same failure is returned to the caller.
func (s *Service) Generate(ctx context.Context, id string) (models.RunRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return models.RunRecord{}, err
	}
	if rec.Status != models.RunStatusCreated {
		return models.RunRecord{}, newRunError(ErrInvalidState, id,
			fmt.Sprintf("run %s is %s; generate requires status created", id, rec.Status))
	}

	name, model := s.generator.Name(), s.generator.Model()
	rec.ProviderName, rec.ProviderModel = name, model
	rec.Audit.SetProvider(name, model)

	started := time.Now()
	raw, err := s.generator.GenerateIR(ctx, rec.ProblemSpec)
	if err != nil {
		s.metrics.ObserveGenerate("generator_failure", time.Since(started))
		return s.fail(ctx, rec, StageGenerate, ErrGeneratorFailure, fmt.Sprintf("IR generation failed: %v", err))
	}
	if violations := s.schema.Validate(raw); len(violations) > 0 {
		s.metrics.ObserveGenerate("schema_invalid", time.Since(started))
		verr := &irschema.ValidationError{Violations: violations}
		return s.fail(ctx, rec, StageSchema, ErrSchemaInvalid, verr.Error())
	}
	ir, err := irsemantic.Validate(raw)
	if err != nil {
		s.metrics.ObserveGenerate("semantic_invalid", time.Since(started))
		return s.fail(ctx, rec, StageSemantic, ErrSemanticInvalid, err.Error())
	}
	s.metrics.ObserveGenerate("ok", time.Since(started))

	details := map[string]string{
		"schema_version": ir.Version,
		"provider_name":  name,
		"provider_model": model,
	}
	if hash, err := canonical.IRHash(ir); err == nil {
		details["ir_hash"] = hash
	}
	now := s.now()
	rec.IR = &ir
	rec.Status = models.RunStatusIRGenerated
	rec.Error = ""
	rec.UpdatedAt = now
	rec.Audit.Append(models.AuditEvent{At: now, Action: models.AuditActionIRGenerated, Details: details})
	if err := s.put(ctx, rec); err != nil {
		return models.RunRecord{}, err
	}
	s.logger.Info("ir generated", "run_id", id, "status", rec.Status, "model", ir.Name, "variables", len(ir.Variables))
	return rec, nil
}

// Solve runs the solver on the run's IR. The result is stored whatever its
// status: optimal and feasible move the run to solved, infeasible to
// infeasible, and unknown to error. An unknown result is not returned as an
// error because the solver did answer.
func (s *Service) Solve(ctx context.Context, id string) (models.RunRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return models.RunRecord{}, err
	}
	if rec.IR == nil {
		return models.RunRecord{}, newRunError(ErrInvalidState, id, "no IR to solve")
	}
	if rec.Status != models.RunStatusIRGenerated {
		return models.RunRecord{}, newRunError(ErrInvalidState, id,
			fmt.Sprintf("run %s is %s; solve requires status ir_generated", id, rec.Status))
	}

	started := time.Now()
	outcome, err := s.solveSafely(ctx, *rec.IR)
	if err != nil {
		s.metrics.ObserveSolve("failure", time.Since(started))
		return s.fail(ctx, rec, StageSolve, ErrSolverFailure, err.Error())
	}
	s.metrics.ObserveSolve(string(outcome.Result.Status), time.Since(started))

	result := outcome.Result
	if result.Variables == nil {
		result.Variables = map[string]int64{}
	}
	details := map[string]string{"solver_status": string(result.Status)}
	switch result.Status {
	case models.SolveStatusOptimal, models.SolveStatusFeasible:
		rec.Status = models.RunStatusSolved
	case models.SolveStatusInfeasible:
		rec.Status = models.RunStatusInfeasible
	default:
		rec.Status = models.RunStatusError
		rec.Error = "solver returned no solution"
		if outcome.Reason != "" {
			rec.Error += ": " + outcome.Reason
		}
	}
	if outcome.Reason != "" && !result.Status.HasSolution() {
		details["reason"] = outcome.Reason
	}
	details["status"] = string(rec.Status)

	now := s.now()
	rec.Solution = &result
	rec.UpdatedAt = now
	rec.Audit.Append(models.AuditEvent{At: now, Action: models.AuditActionSolved, Details: details})
	if err := s.put(ctx, rec); err != nil {
		return models.RunRecord{}, err
	}
	s.logger.Info("run solved", "run_id", id, "status", rec.Status, "solver_status", result.Status, "reason", outcome.Reason)
	return rec, nil
}

func (s *Service) solveSafely(ctx context.Context, ir models.OptimizationModelIR) (out solver.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("solver failed: %v", r)
		}
	}()
	return s.solver.Solve(ctx, ir, s.budget), nil
}

// fail records the run as error with one error audit event, persists it, and
// returns the failure for the caller.
func (s *Service) fail(ctx context.Context, rec models.RunRecord, stage string, kind error, message string) (models.RunRecord, error) {
	now := s.now()
	rec.Status = models.RunStatusError
	rec.Error = message
	rec.UpdatedAt = now
	rec.Audit.Append(models.AuditEvent{At: now, Action: models.AuditActionError, Details: map[string]string{
		"stage":   stage,
		"kind":    KindName(kind),
		"message": message,
	}})
	runErr := newRunError(kind, rec.ID, message)
	if err := s.put(ctx, rec); err != nil {
		return models.RunRecord{}, errors.Join(runErr, err)
	}
	s.logger.Warn("run failed", "run_id", rec.ID, "status", rec.Status, "stage", stage, "error", message)
	return rec, runErr
}

// put writes the full record and then notifies the sinks.
func (s *Service) put(ctx context.Context, rec models.RunRecord) error {
	if err := s.store.PutRun(ctx, rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newRunError(ErrNotFound, rec.ID, fmt.Sprintf("run %s not found", rec.ID))
		}
		return fmt.Errorf("persist run %s: %w", rec.ID, err)
	}
	s.metrics.Transition(string(rec.Status))
	s.emit(ctx, rec)
	return nil
}

// emit publishes the last audit event and archives finished runs. Failures
// are logged only; the store already holds the record.
func (s *Service) emit(ctx context.Context, rec models.RunRecord) {
	if s.sink == nil && s.archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if s.sink != nil {
		if ev, ok := audit.EventFrom(rec); ok {
			if err := s.sink.Publish(ctx, ev); err != nil {
				s.logger.Warn("publish audit event", "run_id", rec.ID, "action", ev.Action, "error", err)
			}
		}
	}
	if s.archiver != nil && rec.Status.Terminal() {
		key, err := s.archiver.ArchiveRun(ctx, rec)
		if err != nil {
			s.logger.Warn("archive run", "run_id", rec.ID, "error", err)
			return
		}
		s.logger.Debug("run archived", "run_id", rec.ID, "key", key)
	}
}
