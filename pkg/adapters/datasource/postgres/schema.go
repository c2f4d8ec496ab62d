package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tessera-data/tessera-engine/pkg/models"
)

// SchemaFetcher captures schema snapshots from PostgreSQL.
type SchemaFetcher struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewSchemaFetcher connects to PostgreSQL and returns a schema fetcher.
// If logger is nil, a no-op logger is used.
func NewSchemaFetcher(ctx context.Context, cfg *Config, logger *zap.Logger) (*SchemaFetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, cfg.connectionString())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &SchemaFetcher{pool: pool, logger: logger}, nil
}

// NewSchemaFetcherFromPool wraps an existing pool (for tests or shared
// pool setups). If logger is nil, a no-op logger is used.
func NewSchemaFetcherFromPool(pool *pgxpool.Pool, logger *zap.Logger) *SchemaFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaFetcher{pool: pool, logger: logger}
}

// FetchSchema introspects all user tables and their columns, excluding
// system schemas. Tables and columns come back in deterministic order
// (schema, table, ordinal).
func (f *SchemaFetcher) FetchSchema(ctx context.Context) (*models.SchemaSnapshot, error) {
	const query = `
		SELECT
			c.table_schema,
			c.table_name,
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES',
			c.ordinal_position
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE t.table_type = 'BASE TABLE'
		  AND c.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY c.table_schema, c.table_name, c.ordinal_position
	`

	rows, err := f.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query schema metadata: %w", err)
	}
	defer rows.Close()

	snapshot := &models.SchemaSnapshot{CapturedAt: time.Now().UTC()}
	var current *models.TableDescriptor

	for rows.Next() {
		var (
			schemaName, tableName string
			col                   models.ColumnDescriptor
		)
		if err := rows.Scan(&schemaName, &tableName, &col.Name, &col.DataType, &col.Nullable, &col.Ordinal); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}

		if current == nil || current.SchemaName != schemaName || current.TableName != tableName {
			snapshot.Tables = append(snapshot.Tables, models.TableDescriptor{
				SchemaName: schemaName,
				TableName:  tableName,
			})
			current = &snapshot.Tables[len(snapshot.Tables)-1]
		}
		current.Columns = append(current.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema rows: %w", err)
	}

	f.logger.Debug("schema snapshot captured",
		zap.Int("tables", len(snapshot.Tables)))

	return snapshot, nil
}

// Close releases the pool.
func (f *SchemaFetcher) Close() error {
	f.pool.Close()
	return nil
}
