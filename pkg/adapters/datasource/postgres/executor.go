package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-data/tessera-engine/pkg/adapters/datasource"
	"github.com/tessera-data/tessera-engine/pkg/models"
)

// Executor provides PostgreSQL query execution over a pgx pool.
type Executor struct {
	pool    *pgxpool.Pool
	typeMap *pgtype.Map
}

// NewExecutor connects to PostgreSQL and returns an executor.
func NewExecutor(ctx context.Context, cfg *Config) (*Executor, error) {
	pool, err := pgxpool.New(ctx, cfg.connectionString())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return NewExecutorFromPool(pool), nil
}

// NewExecutorFromPool wraps an existing pool. The caller keeps ownership
// of the pool lifecycle when constructing this way.
func NewExecutorFromPool(pool *pgxpool.Pool) *Executor {
	return &Executor{pool: pool, typeMap: pgtype.NewMap()}
}

// Execute runs the validated SQL with the given timeout and normalizes the
// result. The timeout is enforced by context cancellation of the
// underlying database call.
func (e *Executor) Execute(ctx context.Context, sqlQuery string, timeout time.Duration) (*models.ExecutionResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()

	rows, err := e.pool.Query(ctx, sqlQuery)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	columnTypes := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
		columnTypes[i] = e.typeNameForOID(fd.DataTypeOID)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, classifyError(ctx, err)
		}
		row := make([]any, len(values))
		copy(row, values)
		resultRows = append(resultRows, row)
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

// Close releases the pool.
func (e *Executor) Close() error {
	e.pool.Close()
	return nil
}

func (e *Executor) typeNameForOID(oid uint32) string {
	if t, ok := e.typeMap.TypeForOID(oid); ok {
		return t.Name
	}
	return fmt.Sprintf("oid:%d", oid)
}

// classifyError maps a pgx/driver error onto the executor error taxonomy.
func classifyError(ctx context.Context, err error) *datasource.ExecutionError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return datasource.NewExecutionError(datasource.ErrorTimeout, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501": // insufficient_privilege
			return datasource.NewExecutionError(datasource.ErrorPermissionDenied, err)
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "42": // syntax or undefined object
			return datasource.NewExecutionError(datasource.ErrorSyntax, err)
		case len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "28"), // connection, authentication
			pgErr.Code == "57P01": // admin_shutdown
			return datasource.NewExecutionError(datasource.ErrorConnection, err)
		default:
			return datasource.NewExecutionError(datasource.ErrorUnknown, err)
		}
	}

	if pgconn.Timeout(err) {
		return datasource.NewExecutionError(datasource.ErrorTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return datasource.NewExecutionError(datasource.ErrorConnection, err)
	}

	return datasource.NewExecutionError(datasource.ErrorUnknown, err)
}
