// Package sqlguard validates generated SQL before execution. Validation is
// a pure function: no I/O, fully deterministic, and the only permitted
// mutation of the input is row-limit injection.
package sqlguard

// Dialect selects the row-limit syntax used by rewrites.
type Dialect string

const (
	DialectPostgres  Dialect = "postgres"
	DialectSQLServer Dialect = "sqlserver"
)

// Policy configures a validation pass.
type Policy struct {
	// MaxRows caps the injected or clamped row limit.
	MaxRows int

	// AllowWrite permits statements whose leading keyword appears in
	// AllowedWriteStatements. With AllowWrite false every denied keyword
	// is rejected unconditionally.
	AllowWrite             bool
	AllowedWriteStatements []string

	// DeniedStatements are statement keywords rejected at the top level.
	DeniedStatements []string

	// RequireRowLimit injects a dialect-appropriate limit into SELECT
	// statements that lack one.
	RequireRowLimit bool

	// CheckLiteralInjection runs a libinjection sweep over string
	// literals in the statement.
	CheckLiteralInjection bool

	Dialect Dialect
}

// defaultDenylist lists statement keywords that are rejected at the top
// level unless explicitly allow-listed for writes.
var defaultDenylist = []string{
	"DROP", "DELETE", "TRUNCATE", "ALTER", "EXEC", "MERGE",
	"INSERT", "UPDATE", "GRANT", "REVOKE",
}

// DefaultPolicy returns the read-only policy used by the pipeline: writes
// denied, row limit required, literal injection sweep on.
func DefaultPolicy(dialect Dialect, maxRows int) Policy {
	denied := make([]string, len(defaultDenylist))
	copy(denied, defaultDenylist)

	return Policy{
		MaxRows:               maxRows,
		AllowWrite:            false,
		DeniedStatements:      denied,
		RequireRowLimit:       true,
		CheckLiteralInjection: true,
		Dialect:               dialect,
	}
}

// Verdict is the result of validating one statement. Accepted verdicts
// carry the (possibly rewritten) SQL; rejected verdicts carry one or more
// human-readable reasons that feed the regeneration prompt.
type Verdict struct {
	Accepted     bool
	RewrittenSQL string
	Reasons      []string
}

func accepted(sql string) Verdict {
	return Verdict{Accepted: true, RewrittenSQL: sql}
}

func rejected(reasons []string) Verdict {
	return Verdict{Accepted: false, Reasons: reasons}
}
