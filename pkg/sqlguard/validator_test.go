package sqlguard

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-data/tessera-engine/pkg/models"
)

func testSnapshot() *models.SchemaSnapshot {
	return &models.SchemaSnapshot{
		Tables: []models.TableDescriptor{
			{SchemaName: "public", TableName: "customers", Columns: []models.ColumnDescriptor{
				{Name: "id", DataType: "integer", Ordinal: 1},
				{Name: "name", DataType: "text", Nullable: true, Ordinal: 2},
			}},
			{SchemaName: "public", TableName: "orders", Columns: []models.ColumnDescriptor{
				{Name: "id", DataType: "integer", Ordinal: 1},
				{Name: "customer_id", DataType: "integer", Ordinal: 2},
				{Name: "total", DataType: "numeric", Nullable: true, Ordinal: 3},
			}},
		},
	}
}

func readOnlyPolicy() Policy {
	return DefaultPolicy(DialectPostgres, 100)
}

func TestValidate_DeniedStatements(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		keyword string
	}{
		{"drop table", "DROP TABLE customers", "DROP"},
		{"delete rows", "DELETE FROM orders WHERE id = 1", "DELETE"},
		{"truncate", "TRUNCATE orders", "TRUNCATE"},
		{"alter table", "ALTER TABLE orders ADD COLUMN x int", "ALTER"},
		{"insert", "INSERT INTO orders (id) VALUES (1)", "INSERT"},
		{"update", "UPDATE orders SET total = 0", "UPDATE"},
		{"grant", "GRANT ALL ON orders TO intruder", "GRANT"},
		{"exec", "EXEC sp_help", "EXEC"},
		{"merge", "MERGE INTO orders USING staging ON 1=1", "MERGE"},
		{"lowercase drop", "drop table customers", "DROP"},
		{"delete inside cte", "WITH gone AS (DELETE FROM orders RETURNING *) SELECT * FROM gone", "DELETE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := Validate(tt.sql, readOnlyPolicy(), testSnapshot())
			require.False(t, verdict.Accepted)
			assert.Contains(t, verdict.Reasons, fmt.Sprintf("denied statement: %s", tt.keyword))
		})
	}
}

func TestValidate_KeywordsInsideStringsAndIdentifiersAreIgnored(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"literal containing DROP", "SELECT * FROM orders WHERE note = 'please DROP me a line'"},
		{"identifier containing delete", `SELECT * FROM orders WHERE "deleted_flag" = false`},
		{"table name prefix", "SELECT * FROM orders WHERE customer_id IN (SELECT id FROM customers)"},
		{"comment containing TRUNCATE", "SELECT * FROM orders -- TRUNCATE nothing\nWHERE id = 1"},
		{"block comment containing ALTER", "SELECT /* ALTER nothing */ * FROM orders"},
	}

	// Literal sweep off so this exercises the keyword scanner in isolation.
	policy := readOnlyPolicy()
	policy.CheckLiteralInjection = false

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := Validate(tt.sql, policy, testSnapshot())
			assert.True(t, verdict.Accepted, "reasons: %v", verdict.Reasons)
		})
	}
}

func TestValidate_MultiStatement(t *testing.T) {
	verdict := Validate("SELECT * FROM orders; DROP TABLE customers", readOnlyPolicy(), testSnapshot())
	require.False(t, verdict.Accepted)
	assert.Contains(t, strings.Join(verdict.Reasons, " "), "multiple SQL statements")

	// Trailing semicolon and semicolons inside literals are fine. Literal
	// sweep off so semicolon handling is tested in isolation.
	policy := readOnlyPolicy()
	policy.CheckLiteralInjection = false
	for _, sql := range []string{
		"SELECT * FROM orders;",
		"SELECT * FROM orders WHERE note = 'a;b'",
		`SELECT * FROM orders WHERE note = 'O''Brien;'`,
	} {
		verdict := Validate(sql, policy, testSnapshot())
		assert.True(t, verdict.Accepted, "sql: %s reasons: %v", sql, verdict.Reasons)
	}
}

func TestValidate_RowLimitInjection(t *testing.T) {
	policy := readOnlyPolicy()

	t.Run("select without limit gets wrapped", func(t *testing.T) {
		verdict := Validate("SELECT name FROM customers", policy, testSnapshot())
		require.True(t, verdict.Accepted)
		assert.Equal(t, "SELECT * FROM (SELECT name FROM customers) AS _limited LIMIT 100", verdict.RewrittenSQL)
	})

	t.Run("existing small limit untouched", func(t *testing.T) {
		sql := "SELECT name FROM customers LIMIT 5"
		verdict := Validate(sql, policy, testSnapshot())
		require.True(t, verdict.Accepted)
		assert.Equal(t, sql, verdict.RewrittenSQL)
	})

	t.Run("oversized limit clamped", func(t *testing.T) {
		verdict := Validate("SELECT name FROM customers LIMIT 5000", policy, testSnapshot())
		require.True(t, verdict.Accepted)
		assert.Equal(t, "SELECT name FROM customers LIMIT 100", verdict.RewrittenSQL)
	})

	t.Run("fetch first recognized", func(t *testing.T) {
		sql := "SELECT name FROM customers FETCH FIRST 10 ROWS ONLY"
		verdict := Validate(sql, policy, testSnapshot())
		require.True(t, verdict.Accepted)
		assert.Equal(t, sql, verdict.RewrittenSQL)
	})

	t.Run("limit with offset recognized", func(t *testing.T) {
		sql := "SELECT name FROM customers LIMIT 10 OFFSET 20"
		verdict := Validate(sql, policy, testSnapshot())
		require.True(t, verdict.Accepted)
		assert.Equal(t, sql, verdict.RewrittenSQL)
	})
}

func TestValidate_Idempotent(t *testing.T) {
	policy := readOnlyPolicy()

	inputs := []string{
		"SELECT name FROM customers",
		"SELECT name FROM customers LIMIT 5000",
		"SELECT c.name, SUM(o.total) FROM customers c JOIN orders o ON o.customer_id = c.id GROUP BY c.name ORDER BY 2 DESC",
	}

	for _, sql := range inputs {
		first := Validate(sql, policy, testSnapshot())
		require.True(t, first.Accepted, "sql: %s reasons: %v", sql, first.Reasons)

		second := Validate(first.RewrittenSQL, policy, testSnapshot())
		require.True(t, second.Accepted, "sql: %s reasons: %v", first.RewrittenSQL, second.Reasons)
		assert.Equal(t, first.RewrittenSQL, second.RewrittenSQL, "no double limit injection")
	}
}

func TestValidate_SQLServerDialect(t *testing.T) {
	policy := DefaultPolicy(DialectSQLServer, 50)

	t.Run("top injected", func(t *testing.T) {
		verdict := Validate("SELECT name FROM customers", policy, testSnapshot())
		require.True(t, verdict.Accepted)
		assert.Equal(t, "SELECT TOP (50) * FROM (SELECT name FROM customers) AS _limited", verdict.RewrittenSQL)
	})

	t.Run("existing top untouched", func(t *testing.T) {
		sql := "SELECT TOP (10) name FROM customers"
		verdict := Validate(sql, policy, testSnapshot())
		require.True(t, verdict.Accepted)
		assert.Equal(t, sql, verdict.RewrittenSQL)
	})

	t.Run("oversized top clamped", func(t *testing.T) {
		verdict := Validate("SELECT TOP (9000) name FROM customers", policy, testSnapshot())
		require.True(t, verdict.Accepted)
		assert.Equal(t, "SELECT TOP (50) name FROM customers", verdict.RewrittenSQL)
	})

	t.Run("idempotent", func(t *testing.T) {
		first := Validate("SELECT name FROM customers", policy, testSnapshot())
		require.True(t, first.Accepted)
		second := Validate(first.RewrittenSQL, policy, testSnapshot())
		require.True(t, second.Accepted)
		assert.Equal(t, first.RewrittenSQL, second.RewrittenSQL)
	})
}

func TestValidate_SQLServerCTELimit(t *testing.T) {
	policy := DefaultPolicy(DialectSQLServer, 100)

	// A derived table cannot begin with WITH in T-SQL, so CTE statements
	// must never be wrapped the way plain SELECTs are.
	t.Run("cte gets offset-fetch, not a wrap", func(t *testing.T) {
		sql := "WITH top_customers AS (SELECT name FROM customers) SELECT name FROM top_customers"
		verdict := Validate(sql, policy, testSnapshot())
		require.True(t, verdict.Accepted, "reasons: %v", verdict.Reasons)
		assert.Equal(t,
			sql+" ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT 100 ROWS ONLY",
			verdict.RewrittenSQL)
	})

	t.Run("cte with outer order by keeps it", func(t *testing.T) {
		sql := "WITH ranked AS (SELECT name FROM customers) SELECT name FROM ranked ORDER BY name"
		verdict := Validate(sql, policy, testSnapshot())
		require.True(t, verdict.Accepted, "reasons: %v", verdict.Reasons)
		assert.Equal(t,
			sql+" OFFSET 0 ROWS FETCH NEXT 100 ROWS ONLY",
			verdict.RewrittenSQL)
		assert.NotContains(t, verdict.RewrittenSQL, "(SELECT NULL)")
	})

	t.Run("order by inside cte does not count as outer", func(t *testing.T) {
		sql := "WITH ranked AS (SELECT TOP (10) name FROM customers ORDER BY name) SELECT name FROM ranked"
		verdict := Validate(sql, policy, testSnapshot())
		require.True(t, verdict.Accepted, "reasons: %v", verdict.Reasons)
		assert.Contains(t, verdict.RewrittenSQL, "ORDER BY (SELECT NULL) OFFSET 0 ROWS")
	})

	t.Run("existing fetch next clamped not doubled", func(t *testing.T) {
		sql := "WITH c AS (SELECT name FROM customers) SELECT name FROM c ORDER BY name OFFSET 0 ROWS FETCH NEXT 5000 ROWS ONLY"
		verdict := Validate(sql, policy, testSnapshot())
		require.True(t, verdict.Accepted, "reasons: %v", verdict.Reasons)
		assert.Contains(t, verdict.RewrittenSQL, "FETCH NEXT 100 ROWS ONLY")
		assert.Equal(t, 1, strings.Count(verdict.RewrittenSQL, "FETCH NEXT"))
	})

	t.Run("idempotent", func(t *testing.T) {
		sql := "WITH top_customers AS (SELECT name FROM customers) SELECT name FROM top_customers"
		first := Validate(sql, policy, testSnapshot())
		require.True(t, first.Accepted, "reasons: %v", first.Reasons)
		second := Validate(first.RewrittenSQL, policy, testSnapshot())
		require.True(t, second.Accepted, "reasons: %v", second.Reasons)
		assert.Equal(t, first.RewrittenSQL, second.RewrittenSQL)
	})
}

func TestValidate_TableReferenceCheck(t *testing.T) {
	policy := readOnlyPolicy()

	t.Run("unknown table rejected", func(t *testing.T) {
		verdict := Validate("SELECT * FROM invoices", policy, testSnapshot())
		require.False(t, verdict.Accepted)
		assert.Contains(t, strings.Join(verdict.Reasons, " "), "no recognized tables")
	})

	t.Run("one recognized table is enough", func(t *testing.T) {
		verdict := Validate("SELECT * FROM orders o JOIN mystery m ON m.id = o.id", policy, testSnapshot())
		assert.True(t, verdict.Accepted, "reasons: %v", verdict.Reasons)
	})

	t.Run("schema-qualified name recognized", func(t *testing.T) {
		verdict := Validate("SELECT * FROM public.orders", policy, testSnapshot())
		assert.True(t, verdict.Accepted, "reasons: %v", verdict.Reasons)
	})

	t.Run("no table references passes", func(t *testing.T) {
		verdict := Validate("SELECT 1", policy, testSnapshot())
		assert.True(t, verdict.Accepted, "reasons: %v", verdict.Reasons)
	})

	t.Run("cte names not counted as unknown tables", func(t *testing.T) {
		sql := "WITH top_orders AS (SELECT * FROM orders) SELECT * FROM top_orders"
		verdict := Validate(sql, policy, testSnapshot())
		assert.True(t, verdict.Accepted, "reasons: %v", verdict.Reasons)
	})

	t.Run("nil snapshot skips check", func(t *testing.T) {
		verdict := Validate("SELECT * FROM invoices", policy, nil)
		assert.True(t, verdict.Accepted, "reasons: %v", verdict.Reasons)
	})
}

func TestValidate_LiteralInjectionSweep(t *testing.T) {
	verdict := Validate(
		`SELECT * FROM customers WHERE name = '1'' OR ''1''=''1'`,
		readOnlyPolicy(), testSnapshot())
	require.False(t, verdict.Accepted)
	assert.Contains(t, strings.Join(verdict.Reasons, " "), "injection fingerprint")
}

func TestValidate_AllowWrite(t *testing.T) {
	policy := readOnlyPolicy()
	policy.AllowWrite = true
	policy.AllowedWriteStatements = []string{"INSERT"}
	policy.RequireRowLimit = false

	verdict := Validate("INSERT INTO orders (id) VALUES (1)", policy, testSnapshot())
	assert.True(t, verdict.Accepted, "reasons: %v", verdict.Reasons)

	// Only the allow-listed keyword is permitted.
	verdict = Validate("DELETE FROM orders", policy, testSnapshot())
	assert.False(t, verdict.Accepted)
}

func TestValidate_EmptyAndUnsupported(t *testing.T) {
	verdict := Validate("   ", readOnlyPolicy(), testSnapshot())
	require.False(t, verdict.Accepted)
	assert.Contains(t, verdict.Reasons, "empty statement")

	verdict = Validate("VACUUM ANALYZE", readOnlyPolicy(), testSnapshot())
	require.False(t, verdict.Accepted)
	assert.Contains(t, verdict.Reasons, "unsupported statement type: VACUUM")
}

func TestValidate_CollectsAllReasons(t *testing.T) {
	verdict := Validate("DELETE FROM invoices", readOnlyPolicy(), testSnapshot())
	require.False(t, verdict.Accepted)
	assert.GreaterOrEqual(t, len(verdict.Reasons), 2, "denied keyword and unknown table both reported")
}
