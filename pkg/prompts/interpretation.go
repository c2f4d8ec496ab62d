package prompts

import (
	"fmt"
	"strings"

	"github.com/tessera-data/tessera-engine/pkg/models"
)

// interpretationSampleRows caps how many result rows are embedded in the
// interpretation prompt. Large results add tokens without adding signal.
const interpretationSampleRows = 20

// BuildInterpretationPrompt creates the prompt asking the model to explain
// a query result in terms of the original question. The presentation plan
// tells the model how the data will be shown, so the summary complements
// the chart instead of re-reading it.
func BuildInterpretationPrompt(question string, sqlText string, result *models.ExecutionResult, plan models.PresentationPlan) string {
	var prompt strings.Builder

	prompt.WriteString("# Result Interpretation\n\n")
	prompt.WriteString("A user asked a question, a SQL query was run, and the results are below.\n")
	prompt.WriteString("Summarize what the results say in plain language.\n\n")

	prompt.WriteString("## Question\n\n")
	prompt.WriteString(question)
	prompt.WriteString("\n\n")

	prompt.WriteString("## Query\n\n")
	prompt.WriteString("```sql\n")
	prompt.WriteString(sqlText)
	prompt.WriteString("\n```\n\n")

	prompt.WriteString("## Results\n\n")
	writeResultTable(&prompt, result)

	writePresentation(&prompt, plan)

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Answer the question directly in 1-3 sentences\n")
	prompt.WriteString("- Mention concrete values from the results\n")
	prompt.WriteString("- If the result is empty, say that no matching data was found\n")
	prompt.WriteString("- Do not mention SQL, queries, or databases\n")

	return prompt.String()
}

// BuildInterpretationSystemMessage returns the system message for interpretation.
func BuildInterpretationSystemMessage() string {
	return `You are a data analyst who explains query results to business users in clear, direct language.`
}

func writePresentation(prompt *strings.Builder, plan models.PresentationPlan) {
	var desc string
	switch plan.Kind {
	case models.PresentationBar:
		desc = fmt.Sprintf("a bar chart of %s by %s", plan.YColumn, plan.XColumn)
	case models.PresentationLine:
		desc = fmt.Sprintf("a line chart of %s over %s", strings.Join(plan.YColumns, ", "), plan.XColumn)
	case models.PresentationPie:
		desc = fmt.Sprintf("a pie chart of %s by %s", plan.ValueColumn, plan.LabelColumn)
	case models.PresentationTable:
		desc = "a table"
	default:
		return
	}

	prompt.WriteString("## Presentation\n\n")
	prompt.WriteString(fmt.Sprintf("The user will see the results as %s alongside your summary.\n\n", desc))
}

func writeResultTable(prompt *strings.Builder, result *models.ExecutionResult) {
	if result == nil || result.RowCount == 0 {
		prompt.WriteString("(no rows)\n\n")
		return
	}

	prompt.WriteString(strings.Join(result.Columns, " | "))
	prompt.WriteString("\n")

	shown := result.Rows
	if len(shown) > interpretationSampleRows {
		shown = shown[:interpretationSampleRows]
	}
	for _, row := range shown {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%v", v)
		}
		prompt.WriteString(strings.Join(cells, " | "))
		prompt.WriteString("\n")
	}
	if result.RowCount > len(shown) {
		prompt.WriteString(fmt.Sprintf("... (%d rows total, %d shown)\n", result.RowCount, len(shown)))
	}
	prompt.WriteString("\n")
}
