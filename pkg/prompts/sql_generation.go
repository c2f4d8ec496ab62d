// Package prompts builds the LLM prompts used by the question pipeline.
package prompts

import (
	"fmt"
	"strings"

	"github.com/tessera-data/tessera-engine/pkg/models"
)

// GenerationContext carries everything the SQL generation prompt needs.
type GenerationContext struct {
	Question string
	Snapshot *models.SchemaSnapshot
	Dialect  string // "postgres" or "sqlserver"

	// PriorSQL and PriorReasons describe the previous rejected attempt,
	// if any. Both empty on the first attempt.
	PriorSQL     string
	PriorReasons []string
}

// BuildSQLGenerationPrompt creates the prompt for translating a natural
// language question into a single SELECT statement. On retry attempts the
// rejected statement and every rejection reason are included so the model
// can correct course instead of repeating the mistake.
func BuildSQLGenerationPrompt(gc GenerationContext) string {
	var prompt strings.Builder

	prompt.WriteString("# SQL Query Generation\n\n")
	prompt.WriteString("Translate the question below into a single SQL query against the given schema.\n\n")

	prompt.WriteString("## Database Schema\n\n")
	writeSchema(&prompt, gc.Snapshot)

	prompt.WriteString("## Question\n\n")
	prompt.WriteString(gc.Question)
	prompt.WriteString("\n\n")

	if gc.PriorSQL != "" {
		prompt.WriteString("## Previous Attempt (rejected)\n\n")
		prompt.WriteString("```sql\n")
		prompt.WriteString(gc.PriorSQL)
		prompt.WriteString("\n```\n\n")
		prompt.WriteString("Rejection reasons:\n")
		for _, reason := range gc.PriorReasons {
			prompt.WriteString(fmt.Sprintf("- %s\n", reason))
		}
		prompt.WriteString("\nWrite a corrected query that avoids every problem listed above.\n\n")
	}

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Produce exactly ONE statement; no semicolon-separated batches\n")
	prompt.WriteString("- Read-only: SELECT (optionally with CTEs) only\n")
	prompt.WriteString("- Reference only tables and columns from the schema above\n")
	writeDialectRules(&prompt, gc.Dialect)
	prompt.WriteString("- Return ONLY the SQL inside a ```sql code fence, no explanation\n")

	return prompt.String()
}

// BuildSQLGenerationSystemMessage returns the system message for SQL generation.
func BuildSQLGenerationSystemMessage() string {
	return `You are an expert SQL analyst. You translate business questions into precise, efficient, read-only SQL queries against the schema you are given.`
}

func writeSchema(prompt *strings.Builder, snapshot *models.SchemaSnapshot) {
	if snapshot == nil || len(snapshot.Tables) == 0 {
		prompt.WriteString("(no tables available)\n\n")
		return
	}
	for _, table := range snapshot.Tables {
		prompt.WriteString(fmt.Sprintf("### %s\n", table.QualifiedName()))
		prompt.WriteString("Columns:\n")
		for _, col := range table.Columns {
			nullInfo := ""
			if col.Nullable {
				nullInfo = " (nullable)"
			}
			prompt.WriteString(fmt.Sprintf("- %s (%s)%s\n", col.Name, col.DataType, nullInfo))
		}
		prompt.WriteString("\n")
	}
}

func writeDialectRules(prompt *strings.Builder, dialect string) {
	switch dialect {
	case "sqlserver":
		prompt.WriteString("- Use T-SQL syntax; limit rows with SELECT TOP (n)\n")
	default:
		prompt.WriteString("- Use PostgreSQL syntax; limit rows with LIMIT\n")
	}
}
