package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-data/tessera-engine/pkg/models"
)

// SchemaFetcher captures schema snapshots from SQL Server.
type SchemaFetcher struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSchemaFetcher connects to SQL Server and returns a schema fetcher.
// If logger is nil, a no-op logger is used.
func NewSchemaFetcher(ctx context.Context, cfg *Config, logger *zap.Logger) (*SchemaFetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlserver", cfg.connectionString())
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlserver: %w", err)
	}
	return &SchemaFetcher{db: db, logger: logger}, nil
}

// NewSchemaFetcherFromDB wraps an existing handle (for tests).
func NewSchemaFetcherFromDB(db *sql.DB, logger *zap.Logger) *SchemaFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaFetcher{db: db, logger: logger}
}

// FetchSchema introspects all user tables and their columns. Tables and
// columns come back in deterministic order (schema, table, ordinal).
func (f *SchemaFetcher) FetchSchema(ctx context.Context) (*models.SchemaSnapshot, error) {
	const query = `
		SELECT
			c.TABLE_SCHEMA,
			c.TABLE_NAME,
			c.COLUMN_NAME,
			c.DATA_TYPE,
			CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END,
			c.ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.COLUMNS c
		JOIN INFORMATION_SCHEMA.TABLES t
		  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
		WHERE t.TABLE_TYPE = 'BASE TABLE'
		ORDER BY c.TABLE_SCHEMA, c.TABLE_NAME, c.ORDINAL_POSITION
	`

	rows, err := f.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query schema metadata: %w", err)
	}
	defer rows.Close()

	snapshot := &models.SchemaSnapshot{CapturedAt: time.Now().UTC()}
	var current *models.TableDescriptor

	for rows.Next() {
		var (
			schemaName, tableName string
			nullable              int
			col                   models.ColumnDescriptor
		)
		if err := rows.Scan(&schemaName, &tableName, &col.Name, &col.DataType, &nullable, &col.Ordinal); err != nil {
			return nil, fmt.Errorf("scan schema row: %w", err)
		}
		col.Nullable = nullable == 1

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

// Close releases the database handle.
func (f *SchemaFetcher) Close() error {
	return f.db.Close()
}
