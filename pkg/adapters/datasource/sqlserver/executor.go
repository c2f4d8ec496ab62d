package sqlserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"time"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/tessera-data/tessera-engine/pkg/adapters/datasource"
	"github.com/tessera-data/tessera-engine/pkg/models"
)

// Executor provides SQL Server query execution over database/sql.
type Executor struct {
	db *sql.DB
}

// NewExecutor connects to SQL Server and returns an executor.
func NewExecutor(ctx context.Context, cfg *Config) (*Executor, error) {
	db, err := sql.Open("sqlserver", cfg.connectionString())
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlserver: %w", err)
	}
	return &Executor{db: db}, nil
}

// NewExecutorFromDB wraps an existing handle. Used by tests to inject a
// mocked database.
func NewExecutorFromDB(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// Execute runs the validated SQL with the given timeout and normalizes the
// result.
func (e *Executor) Execute(ctx context.Context, sqlQuery string, timeout time.Duration) (*models.ExecutionResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()

	rows, err := e.db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classifyError(ctx, err)
	}

	columnTypes := make([]string, len(columns))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			columnTypes[i] = ct.DatabaseTypeName()
		}
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, classifyError(ctx, err)
		}
		for i, v := range values {
			// database/sql returns []byte for many text types.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		resultRows = append(resultRows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(ctx, err)
	}

	return &models.ExecutionResult{
		Columns:     columns,
		ColumnTypes: columnTypes,
		Rows:        resultRows,
		Elapsed:     time.Since(start),
		RowCount:    len(resultRows),
	}, nil
}

// Close releases the database handle.
func (e *Executor) Close() error {
	return e.db.Close()
}

// classifyError maps a go-mssqldb/driver error onto the executor error
// taxonomy.
func classifyError(ctx context.Context, err error) *datasource.ExecutionError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return datasource.NewExecutionError(datasource.ErrorTimeout, err)
	}

	var srvErr mssql.Error
	if errors.As(err, &srvErr) {
		switch srvErr.Number {
		case 102, 105, 156, 207, 208: // syntax errors, invalid column/object names
			return datasource.NewExecutionError(datasource.ErrorSyntax, err)
		case 229, 230, 300, 18456: // permission and login failures
			return datasource.NewExecutionError(datasource.ErrorPermissionDenied, err)
		default:
			return datasource.NewExecutionError(datasource.ErrorUnknown, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, sql.ErrConnDone) {
		return datasource.NewExecutionError(datasource.ErrorConnection, err)
	}

	return datasource.NewExecutionError(datasource.ErrorUnknown, err)
}
