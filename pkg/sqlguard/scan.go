package sqlguard

import "strings"

// scanResult is the lexical summary of a statement: everything keyword
// matching needs, with string literals kept separate so they are never
// mutated or mistaken for keywords.
type scanResult struct {
	// multiStatement is true if a semicolon appears outside string,
	// identifier, and comment context.
	multiStatement bool

	// keywords are the word tokens found outside strings/comments,
	// uppercased, in source order.
	keywords []string

	// literals are the contents of single-quoted string literals.
	literals []string
}

const (
	stateNormal = iota
	stateSingleQuote
	stateDoubleQuote
	stateLineComment
	stateBlockComment
)

func isWordByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// scanStatement walks the SQL once, tracking quote and comment context.
// Keyword case is normalized for matching only; the input is never altered.
func scanStatement(sqlQuery string) scanResult {
	var res scanResult
	var word strings.Builder
	var literal strings.Builder

	state := stateNormal

	flushWord := func() {
		if word.Len() > 0 {
			res.keywords = append(res.keywords, strings.ToUpper(word.String()))
			word.Reset()
		}
	}

	for i := 0; i < len(sqlQuery); i++ {
		c := sqlQuery[i]

		switch state {
		case stateNormal:
			switch {
			case c == ';':
				flushWord()
				res.multiStatement = true
			case c == '\'':
				flushWord()
				state = stateSingleQuote
				literal.Reset()
			case c == '"':
				flushWord()
				state = stateDoubleQuote
			case c == '-' && i+1 < len(sqlQuery) && sqlQuery[i+1] == '-':
				flushWord()
				state = stateLineComment
				i++
			case c == '/' && i+1 < len(sqlQuery) && sqlQuery[i+1] == '*':
				flushWord()
				state = stateBlockComment
				i++
			case isWordByte(c):
				word.WriteByte(c)
			default:
				flushWord()
			}

		case stateSingleQuote:
			if c == '\'' {
				// SQL standard escape: '' stays inside the literal.
				if i+1 < len(sqlQuery) && sqlQuery[i+1] == '\'' {
					literal.WriteByte('\'')
					i++
					continue
				}
				res.literals = append(res.literals, literal.String())
				state = stateNormal
				continue
			}
			literal.WriteByte(c)

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
	flushWord()

	// An unterminated literal still counts for the injection sweep.
	if state == stateSingleQuote && literal.Len() > 0 {
		res.literals = append(res.literals, literal.String())
	}

	return res
}

// stripTrailingSemicolon removes one trailing semicolon and surrounding
// whitespace so a conventionally terminated statement is not mistaken for
// multi-statement input.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimRight(strings.TrimSuffix(sqlQuery, ";"), " \t\n\r")
	}
	return sqlQuery
}
