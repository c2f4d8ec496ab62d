// Package datasource defines the driver-facing interfaces the pipeline
// consumes: schema fetching and bounded query execution. Each
// implementation owns its connection and must be closed when done.
package datasource

import (
	"context"
	"time"

	"github.com/tessera-data/tessera-engine/pkg/models"
)

// SchemaFetcher captures a point-in-time snapshot of the database schema.
type SchemaFetcher interface {
	// FetchSchema introspects the database and returns an immutable
	// snapshot of all user tables and their columns.
	FetchSchema(ctx context.Context) (*models.SchemaSnapshot, error)

	// Close releases the database connection.
	Close() error
}

// QueryExecutor executes validated SQL against the database.
//
// Implementations run exactly the SQL they are given; all safety rewrites
// (denylist, row limits) happen in the validator before this layer.
type QueryExecutor interface {
	// Execute runs the query with the given timeout and normalizes the
	// result. Row and column order from the driver is preserved; there
	// is no implicit sorting. Failures are returned as *ExecutionError.
	Execute(ctx context.Context, sqlQuery string, timeout time.Duration) (*models.ExecutionResult, error)

	// Close releases the database connection.
	Close() error
}
