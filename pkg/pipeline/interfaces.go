package pipeline

import (
	"context"

	"github.com/tessera-data/tessera-engine/pkg/models"
	"github.com/tessera-data/tessera-engine/pkg/prompts"
)

// SchemaProvider supplies the current schema snapshot. The stale flag is
// true when the snapshot is being served past its freshness window.
type SchemaProvider interface {
	Snapshot(ctx context.Context) (snapshot *models.SchemaSnapshot, stale bool, err error)
}

// SQLGenerator translates a question plus schema context into candidate SQL.
type SQLGenerator interface {
	GenerateSQL(ctx context.Context, gc prompts.GenerationContext) (string, error)
}

// Interpreter turns an execution result and its chosen presentation into a
// plain-language answer.
type Interpreter interface {
	Interpret(ctx context.Context, question string, sqlText string, result *models.ExecutionResult, plan models.PresentationPlan) (string, error)
}
