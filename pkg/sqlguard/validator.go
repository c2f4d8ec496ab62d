package sqlguard

import (
	"fmt"
	"regexp"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/tessera-data/tessera-engine/pkg/models"
)

// modifyingCTEPattern matches CTEs that contain data-modifying operations,
// e.g. WITH deleted AS (DELETE FROM t RETURNING *) SELECT * FROM deleted.
var modifyingCTEPattern = regexp.MustCompile(`(?i)\bAS\s*\(\s*(INSERT|UPDATE|DELETE|MERGE)\b`)

// tableRefPattern extracts identifiers following FROM/JOIN for the
// best-effort schema reference check. Subqueries start with '(' and are
// deliberately not matched.
var tableRefPattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+("?[A-Za-z_][A-Za-z0-9_$"]*(?:\."?[A-Za-z_][A-Za-z0-9_$"]*)?"?)`)

// Validate checks one statement against the policy and, when a snapshot is
// provided, against the known schema. It returns either an accepted verdict
// carrying the (possibly rewritten) SQL, or a rejected verdict carrying
// every reason found so the regeneration prompt can address all of them at
// once.
//
// The only mutation ever applied is row-limit injection; literals,
// identifiers, and formatting are preserved.
func Validate(sqlText string, policy Policy, snapshot *models.SchemaSnapshot) Verdict {
	normalized := stripTrailingSemicolon(strings.TrimSpace(sqlText))
	if normalized == "" {
		return rejected([]string{"empty statement"})
	}

	scan := scanStatement(normalized)

	var reasons []string

	if scan.multiStatement {
		reasons = append(reasons, "multiple SQL statements are not allowed; submit a single statement")
	}

	reasons = append(reasons, deniedKeywordReasons(scan.keywords, policy)...)

	if head := statementHead(scan.keywords); head != "" {
		reasons = append(reasons, headReasons(head, normalized, policy)...)
	}

	if policy.CheckLiteralInjection {
		reasons = append(reasons, literalInjectionReasons(scan.literals)...)
	}

	if snapshot != nil {
		reasons = append(reasons, tableReferenceReasons(normalized, snapshot)...)
	}

	if len(reasons) > 0 {
		return rejected(reasons)
	}

	if policy.RequireRowLimit && isSelectHead(statementHead(scan.keywords)) {
		return accepted(enforceRowLimit(normalized, policy.Dialect, policy.MaxRows))
	}

	return accepted(normalized)
}

func statementHead(keywords []string) string {
	if len(keywords) == 0 {
		return ""
	}
	return keywords[0]
}

func isSelectHead(head string) bool {
	return head == "SELECT" || head == "WITH"
}

// deniedKeywordReasons rejects any top-level occurrence of a denied
// statement keyword. Keywords inside strings, identifiers, and comments
// were already excluded by the scanner, so a table named "deleted_orders"
// or a literal 'DROP' never trips this check.
func deniedKeywordReasons(keywords []string, policy Policy) []string {
	writeAllowed := make(map[string]bool, len(policy.AllowedWriteStatements))
	if policy.AllowWrite {
		for _, kw := range policy.AllowedWriteStatements {
			writeAllowed[strings.ToUpper(kw)] = true
		}
	}

	denied := make(map[string]bool, len(policy.DeniedStatements))
	for _, kw := range policy.DeniedStatements {
		denied[strings.ToUpper(kw)] = true
	}

	var reasons []string
	seen := make(map[string]bool)
	for _, kw := range keywords {
		if denied[kw] && !writeAllowed[kw] && !seen[kw] {
			seen[kw] = true
			reasons = append(reasons, fmt.Sprintf("denied statement: %s", kw))
		}
	}
	return reasons
}

func headReasons(head, normalized string, policy Policy) []string {
	switch head {
	case "SELECT":
		return nil
	case "WITH":
		if modifyingCTEPattern.MatchString(normalized) {
			return []string{"data-modifying CTE is not allowed"}
		}
		return nil
	default:
		if policy.AllowWrite {
			for _, kw := range policy.AllowedWriteStatements {
				if strings.EqualFold(kw, head) {
					return nil
				}
			}
		}
		// Denied heads already produced a "denied statement" reason.
		for _, kw := range policy.DeniedStatements {
			if strings.EqualFold(kw, head) {
				return nil
			}
		}
		return []string{fmt.Sprintf("unsupported statement type: %s", head)}
	}
}

// literalInjectionReasons sweeps string literals with libinjection. A
// generated query should never need a literal that fingerprints as SQLi;
// when one does, the whole statement is suspect.
func literalInjectionReasons(literals []string) []string {
	var reasons []string
	for _, lit := range literals {
		if isSQLi, fingerprint := libinjection.IsSQLi(lit); isSQLi {
			reasons = append(reasons,
				fmt.Sprintf("string literal matches SQL injection fingerprint %s", fingerprint))
		}
	}
	return reasons
}

// tableReferenceReasons is the best-effort static schema check: a statement
// that references tables, none of which exist in the snapshot, is rejected
// so a hallucinated table never reaches the database silently. Statements
// without table references (SELECT 1, SELECT now()) pass.
func tableReferenceReasons(normalized string, snapshot *models.SchemaSnapshot) []string {
	matches := tableRefPattern.FindAllStringSubmatch(normalized, -1)
	if len(matches) == 0 {
		return nil
	}

	cteNames := cteNamesOf(normalized)

	var referenced []string
	for _, m := range matches {
		name := strings.ReplaceAll(m[1], `"`, "")
		if cteNames[strings.ToLower(name)] {
			continue
		}
		referenced = append(referenced, name)
		if snapshot.HasTable(name) {
			return nil
		}
		// Qualified names also match on the bare table part.
		if idx := strings.LastIndexByte(name, '.'); idx >= 0 && snapshot.HasTable(name[idx+1:]) {
			return nil
		}
	}

	if len(referenced) == 0 {
		return nil
	}
	return []string{fmt.Sprintf(
		"query references no recognized tables (saw: %s)", strings.Join(referenced, ", "))}
}

var ctePattern = regexp.MustCompile(`(?i)\b(?:WITH|,)\s*([A-Za-z_][A-Za-z0-9_$]*)\s+AS\s*\(`)

func cteNamesOf(normalized string) map[string]bool {
	names := make(map[string]bool)
	for _, m := range ctePattern.FindAllStringSubmatch(normalized, -1) {
		names[strings.ToLower(m[1])] = true
	}
	return names
}
