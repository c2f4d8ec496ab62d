package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tessera-data/tessera-engine/pkg/adapters/datasource"
	"github.com/tessera-data/tessera-engine/pkg/apperrors"
	"github.com/tessera-data/tessera-engine/pkg/classifier"
	"github.com/tessera-data/tessera-engine/pkg/logging"
	"github.com/tessera-data/tessera-engine/pkg/models"
	"github.com/tessera-data/tessera-engine/pkg/prompts"
	"github.com/tessera-data/tessera-engine/pkg/sqlguard"
)

// state enumerates the stages of a run. Transitions are strictly forward
// except Validated, which may loop back to generation while the attempt
// budget lasts.
type state int

const (
	stateStart state = iota
	stateSchemaFetched
	stateSQLGenerated
	stateValidated
	stateAccepted
	stateExecuted
	stateClassified
	stateInterpreted
	stateDone
	stateFailed
)

// RunnerConfig holds orchestration tunables.
type RunnerConfig struct {
	// MaxValidationAttempts bounds the generate-validate loop (minimum 1).
	MaxValidationAttempts int
	// QueryTimeout bounds a single execution.
	QueryTimeout time.Duration
	// Dialect is passed through to generation prompts and must match the
	// validator policy's dialect.
	Dialect string
}

// Runner drives a question through the full pipeline. Safe for concurrent
// use; all per-run state lives on the stack of Run.
type Runner struct {
	schema      SchemaProvider
	generator   SQLGenerator
	interpreter Interpreter
	executor    datasource.QueryExecutor
	policy      sqlguard.Policy
	classifier  *classifier.Classifier
	cfg         RunnerConfig
	logger      *zap.Logger
}

// NewRunner wires the pipeline collaborators together. The interpreter may
// be nil, in which case outcomes carry no interpretation text.
func NewRunner(
	schema SchemaProvider,
	generator SQLGenerator,
	interpreter Interpreter,
	executor datasource.QueryExecutor,
	policy sqlguard.Policy,
	cls *classifier.Classifier,
	cfg RunnerConfig,
	logger *zap.Logger,
) *Runner {
	if cfg.MaxValidationAttempts < 1 {
		cfg.MaxValidationAttempts = 1
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	return &Runner{
		schema:      schema,
		generator:   generator,
		interpreter: interpreter,
		executor:    executor,
		policy:      policy,
		classifier:  cls,
		cfg:         cfg,
		logger:      logger.Named("pipeline"),
	}
}

// run carries the mutable state of one Run invocation between stages.
type run struct {
	outcome  *Outcome
	snapshot *models.SchemaSnapshot
	sql      string // candidate SQL of the current attempt
	attempt  int
	reasons  []string // rejection reasons of the previous attempt
	result   *models.ExecutionResult
	start    time.Time
	logger   *zap.Logger
}

// Run executes the pipeline for one question and always returns a terminal
// outcome; failures are reported in Outcome.Failure, never as a Go error.
func (p *Runner) Run(ctx context.Context, req models.PipelineRequest) *Outcome {
	r := &run{
		outcome: &Outcome{
			Question:     req.Question,
			Presentation: models.NonePlan(),
			Diagnostics:  Diagnostics{RunID: uuid.New(), SessionID: req.SessionID},
		},
		start: time.Now(),
	}
	r.logger = p.logger.With(zap.String("run_id", r.outcome.Diagnostics.RunID.String()))
	if req.SessionID != "" {
		r.logger = r.logger.With(zap.String("session_id", req.SessionID))
	}

	r.logger.Info("pipeline run started",
		zap.Int("question_len", len(req.Question)))

	for st := stateStart; ; {
		if st != stateDone && st != stateFailed && ctx.Err() != nil {
			st = p.fail(r, FailureCancelled, "run cancelled", ctx.Err())
		}

		switch st {
		case stateStart:
			st = p.fetchSchema(ctx, r)
		case stateSchemaFetched, stateValidated:
			st = p.generate(ctx, r)
		case stateSQLGenerated:
			st = p.validate(r)
		case stateAccepted:
			st = p.execute(ctx, r)
		case stateExecuted:
			st = p.classify(r)
		case stateClassified:
			st = p.interpret(ctx, r)
		case stateInterpreted:
			r.outcome.Status = StatusDone
			st = stateDone
		case stateDone, stateFailed:
			r.outcome.Diagnostics.Elapsed = time.Since(r.start)
			r.logger.Info("pipeline run finished",
				zap.String("status", string(r.outcome.Status)),
				zap.Int("attempts", len(r.outcome.Diagnostics.Attempts)),
				zap.Duration("elapsed", r.outcome.Diagnostics.Elapsed))
			return r.outcome
		}
	}
}

func (p *Runner) fetchSchema(ctx context.Context, r *run) state {
	snapshot, stale, err := p.schema.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return p.fail(r, FailureCancelled, "run cancelled", err)
		}
		return p.fail(r, FailureSchemaUnavailable, "no schema snapshot available", err)
	}
	r.snapshot = snapshot
	r.outcome.Diagnostics.SchemaStale = stale
	if stale {
		r.logger.Warn("running against stale schema snapshot",
			zap.Time("captured_at", snapshot.CapturedAt))
	}
	return stateSchemaFetched
}

// generate asks the collaborator for candidate SQL. On retry attempts the
// previous statement and its rejection reasons ride along in the prompt.
func (p *Runner) generate(ctx context.Context, r *run) state {
	if r.attempt >= p.cfg.MaxValidationAttempts {
		detail := "all generation attempts failed validation"
		if len(r.reasons) > 0 {
			detail = fmt.Sprintf("%s; last rejection: %s", detail, strings.Join(r.reasons, "; "))
		}
		return p.fail(r, FailureValidationExhausted, detail, apperrors.ErrValidationExhausted)
	}
	r.attempt++

	gc := prompts.GenerationContext{
		Question: r.outcome.Question,
		Snapshot: r.snapshot,
		Dialect:  p.cfg.Dialect,
	}
	if len(r.reasons) > 0 {
		gc.PriorSQL = r.sql
		gc.PriorReasons = r.reasons
	}

	sql, err := p.generator.GenerateSQL(ctx, gc)
	if err != nil {
		if ctx.Err() != nil {
			return p.fail(r, FailureCancelled, "run cancelled", err)
		}
		return p.fail(r, FailureGenerationUnavailable, "sql generation failed", err)
	}

	r.sql = sql
	r.logger.Debug("sql generated",
		zap.Int("attempt", r.attempt),
		zap.String("sql", logging.SanitizeQuery(sql)))
	return stateSQLGenerated
}

func (p *Runner) validate(r *run) state {
	verdict := sqlguard.Validate(r.sql, p.policy, r.snapshot)
	if !verdict.Accepted {
		r.outcome.Diagnostics.Attempts = append(r.outcome.Diagnostics.Attempts, Attempt{
			SQL:     r.sql,
			Reasons: verdict.Reasons,
		})
		r.reasons = verdict.Reasons
		r.logger.Info("sql rejected",
			zap.Int("attempt", r.attempt),
			zap.Strings("reasons", verdict.Reasons))
		return stateValidated
	}

	r.outcome.Diagnostics.Attempts = append(r.outcome.Diagnostics.Attempts, Attempt{SQL: r.sql})
	r.sql = verdict.RewrittenSQL
	return stateAccepted
}

// execute runs the accepted statement once. Execution is never retried: a
// statement that failed may have had side effects the engine cannot see.
func (p *Runner) execute(ctx context.Context, r *run) state {
	result, err := p.executor.Execute(ctx, r.sql, p.cfg.QueryTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return p.fail(r, FailureCancelled, "run cancelled", err)
		}
		var execErr *datasource.ExecutionError
		if errors.As(err, &execErr) {
			return p.fail(r, FailureExecutionError,
				fmt.Sprintf("%s: %s", execErr.Kind, execErr.Detail), err)
		}
		return p.fail(r, FailureExecutionError, "query execution failed", err)
	}

	r.result = result
	r.outcome.SQL = r.sql
	r.outcome.Result = result
	r.logger.Info("query executed",
		zap.Int("rows", result.RowCount),
		zap.Duration("db_elapsed", result.Elapsed))
	return stateExecuted
}

func (p *Runner) classify(r *run) state {
	r.outcome.Presentation = p.classifier.Classify(r.result)
	return stateClassified
}

// interpret is best-effort: a failed interpretation degrades the outcome
// to data-only instead of failing a run that already has results.
func (p *Runner) interpret(ctx context.Context, r *run) state {
	if p.interpreter == nil {
		return stateInterpreted
	}

	text, err := p.interpreter.Interpret(ctx, r.outcome.Question, r.outcome.SQL, r.result, r.outcome.Presentation)
	if err != nil {
		if ctx.Err() != nil {
			return p.fail(r, FailureCancelled, "run cancelled", err)
		}
		r.logger.Warn("interpretation failed, returning data without summary", zap.Error(err))
		return stateInterpreted
	}

	r.outcome.Interpretation = text
	return stateInterpreted
}

func (p *Runner) fail(r *run, reason FailureReason, detail string, err error) state {
	r.outcome.Status = StatusFailed
	r.outcome.Failure = &Failure{Reason: reason, Detail: detail, Err: err}
	r.logger.Warn("pipeline run failed",
		zap.String("reason", string(reason)),
		zap.String("detail", detail),
		zap.Error(err))
	return stateFailed
}
