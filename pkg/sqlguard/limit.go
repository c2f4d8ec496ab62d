package sqlguard

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	// Trailing LIMIT n [OFFSET m] on PostgreSQL-family statements.
	pgLimitPattern = regexp.MustCompile(`(?is)\bLIMIT\s+(\d+)(\s+OFFSET\s+\d+)?\s*$`)

	// ANSI FETCH FIRST/NEXT n ROWS ONLY, also accepted as an existing bound.
	fetchFirstPattern = regexp.MustCompile(`(?is)\bFETCH\s+(?:FIRST|NEXT)\s+(\d+)\s+ROWS?\s+ONLY\s*$`)

	// Leading SELECT TOP (n) on SQL Server statements.
	topPattern = regexp.MustCompile(`(?is)^\s*SELECT\s+TOP\s*\(?\s*(\d+)\s*\)?`)

	// WITH-headed statement (CTE).
	withHeadPattern = regexp.MustCompile(`(?is)^\s*WITH\b`)
)

// enforceRowLimit guarantees the returned SELECT carries an explicit row
// limit no greater than maxRows. Statements that already carry a
// sufficiently small limit pass through byte-identical, which keeps
// validation idempotent: re-validating an accepted query never injects a
// second limit.
func enforceRowLimit(sqlQuery string, dialect Dialect, maxRows int) string {
	switch dialect {
	case DialectSQLServer:
		return enforceTopLimit(sqlQuery, maxRows)
	default:
		return enforcePostgresLimit(sqlQuery, maxRows)
	}
}

func enforcePostgresLimit(sqlQuery string, maxRows int) string {
	if m := pgLimitPattern.FindStringSubmatchIndex(sqlQuery); m != nil {
		return clampNumericGroup(sqlQuery, m, maxRows)
	}
	if m := fetchFirstPattern.FindStringSubmatchIndex(sqlQuery); m != nil {
		return clampNumericGroup(sqlQuery, m, maxRows)
	}
	// Wrap rather than append: a bare "... LIMIT n" suffix is unsafe when
	// the statement ends in a set operation or a comment.
	return fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, maxRows)
}

func enforceTopLimit(sqlQuery string, maxRows int) string {
	if m := topPattern.FindStringSubmatchIndex(sqlQuery); m != nil {
		return clampNumericGroup(sqlQuery, m, maxRows)
	}
	if m := fetchFirstPattern.FindStringSubmatchIndex(sqlQuery); m != nil {
		return clampNumericGroup(sqlQuery, m, maxRows)
	}
	if withHeadPattern.MatchString(sqlQuery) {
		// T-SQL forbids WITH inside a derived table, so the wrap used for
		// plain SELECTs would not parse. OFFSET-FETCH bounds the whole
		// statement instead, and requires an ORDER BY to attach to.
		if !hasTopLevelOrderBy(sqlQuery) {
			sqlQuery += " ORDER BY (SELECT NULL)"
		}
		return fmt.Sprintf("%s OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", sqlQuery, maxRows)
	}
	return fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", maxRows, sqlQuery)
}

// clampNumericGroup rewrites the first capture group down to maxRows when
// it exceeds the cap, leaving the statement untouched otherwise.
func clampNumericGroup(sqlQuery string, matchIdx []int, maxRows int) string {
	start, end := matchIdx[2], matchIdx[3]
	n, err := strconv.Atoi(sqlQuery[start:end])
	if err != nil || n <= maxRows {
		return sqlQuery
	}
	return sqlQuery[:start] + strconv.Itoa(maxRows) + sqlQuery[end:]
}

// hasTopLevelOrderBy reports whether an ORDER BY appears outside any
// parentheses, strings, and comments, i.e. one that sorts the statement's
// final result rather than a CTE or subquery.
func hasTopLevelOrderBy(sqlQuery string) bool {
	state := stateNormal
	depth := 0
	var word []byte
	prevWord := ""

	flush := func() bool {
		if len(word) == 0 {
			return false
		}
		cur := string(word)
		word = word[:0]
		if depth == 0 && prevWord == "ORDER" && equalFoldASCII(cur, "BY") {
			return true
		}
		if equalFoldASCII(cur, "ORDER") && depth == 0 {
			prevWord = "ORDER"
		} else {
			prevWord = ""
		}
		return false
	}

	for i := 0; i < len(sqlQuery); i++ {
		c := sqlQuery[i]

		switch state {
		case stateNormal:
			switch {
			case c == '\'':
				if flush() {
					return true
				}
				state = stateSingleQuote
			case c == '"':
				if flush() {
					return true
				}
				state = stateDoubleQuote
			case c == '-' && i+1 < len(sqlQuery) && sqlQuery[i+1] == '-':
				if flush() {
					return true
				}
				state = stateLineComment
				i++
			case c == '/' && i+1 < len(sqlQuery) && sqlQuery[i+1] == '*':
				if flush() {
					return true
				}
				state = stateBlockComment
				i++
			case c == '(':
				if flush() {
					return true
				}
				depth++
			case c == ')':
				if flush() {
					return true
				}
				if depth > 0 {
					depth--
				}
			case isWordByte(c):
				word = append(word, c)
			default:
				if flush() {
					return true
				}
			}

		case stateSingleQuote:
			if c == '\'' {
				if i+1 < len(sqlQuery) && sqlQuery[i+1] == '\'' {
					i++
					continue
				}
				state = stateNormal
			}

		case stateDoubleQuote:
			if c == '"' {
				state = stateNormal
			}

		case stateLineComment:
			if c == '\n' {
				state = stateNormal
			}

		case stateBlockComment:
			if c == '*' && i+1 < len(sqlQuery) && sqlQuery[i+1] == '/' {
				state = stateNormal
				i++
			}
		}
	}
	return flush()
}

func equalFoldASCII(s, upper string) bool {
	if len(s) != len(upper) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c != upper[i] {
			return false
		}
	}
	return true
}
