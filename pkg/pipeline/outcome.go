// Package pipeline orchestrates the question-to-answer flow: schema fetch,
// SQL generation, validation with bounded retry, execution, result shape
// classification, and interpretation.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/tessera-data/tessera-engine/pkg/models"
)

// Status is the terminal status of a pipeline run.
type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// FailureReason identifies which stage terminated a failed run.
type FailureReason string

const (
	// FailureSchemaUnavailable: no snapshot could be produced, fresh or stale.
	FailureSchemaUnavailable FailureReason = "schema_unavailable"
	// FailureGenerationUnavailable: the generation collaborator failed hard.
	FailureGenerationUnavailable FailureReason = "generation_unavailable"
	// FailureValidationExhausted: every generation attempt was rejected.
	FailureValidationExhausted FailureReason = "validation_exhausted"
	// FailureExecutionError: the database rejected or failed the query.
	FailureExecutionError FailureReason = "execution_error"
	// FailureCancelled: the caller's context was cancelled mid-run.
	FailureCancelled FailureReason = "cancelled"
)

// Failure describes why a run failed.
type Failure struct {
	Reason FailureReason `json:"reason"`
	Detail string        `json:"detail,omitempty"`
	Err    error         `json:"-"`
}

// Attempt records one generate-validate round for diagnostics.
type Attempt struct {
	SQL     string   `json:"sql"`
	Reasons []string `json:"reasons,omitempty"`
}

// Diagnostics carries per-run observability data. It is always populated,
// on success and on failure alike.
type Diagnostics struct {
	RunID uuid.UUID `json:"run_id"`
	// SessionID groups related runs; empty when the caller sent none.
	SessionID   string        `json:"session_id,omitempty"`
	Attempts    []Attempt     `json:"attempts"`
	SchemaStale bool          `json:"schema_stale"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Outcome is the terminal result of a pipeline run. Exactly one of the
// success fields (SQL, Result, Presentation) or Failure is meaningful,
// selected by Status.
type Outcome struct {
	Status         Status                  `json:"status"`
	Question       string                  `json:"question"`
	SQL            string                  `json:"sql,omitempty"`
	Result         *models.ExecutionResult `json:"result,omitempty"`
	Presentation   models.PresentationPlan `json:"presentation"`
	Interpretation string                  `json:"interpretation,omitempty"`
	Failure        *Failure                `json:"failure,omitempty"`
	Diagnostics    Diagnostics             `json:"diagnostics"`
}
