package llm

import (
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches <think>...</think> tags that may appear at the start of LLM responses.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// sqlFencePattern matches a markdown code fence with an optional sql tag.
var sqlFencePattern = regexp.MustCompile("(?s)```(?:sql)?\\s*(.*?)```")

// statementHeadPattern locates the earliest statement keyword in unfenced prose.
var statementHeadPattern = regexp.MustCompile(`(?i)\b(SELECT|WITH|INSERT|UPDATE)\b`)

// ExtractSQL pulls the SQL statement out of an LLM response that may
// contain <think> tags, markdown code fences, or surrounding prose.
func ExtractSQL(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	// Prefer a fenced code block when present.
	if matches := sqlFencePattern.FindStringSubmatch(cleaned); len(matches) >= 2 {
		if sql := strings.TrimSpace(matches[1]); sql != "" {
			return sql, nil
		}
	}

	// No fence: take everything from the earliest statement keyword.
	trimmed := strings.TrimSpace(cleaned)
	if loc := statementHeadPattern.FindStringIndex(trimmed); loc != nil {
		return strings.TrimSpace(trimmed[loc[0]:]), nil
	}

	return "", fmt.Errorf("no SQL statement found in response")
}
