package models

import "time"

// PipelineRequest is one user question submitted to the pipeline. SessionID
// groups related requests from the same conversation.
type PipelineRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

// ExecutionResult is the normalized tabular result of a query execution.
// Row and column order is preserved exactly as the driver returned it.
//
// Invariants: RowCount == len(Rows), and every row has len(Columns) entries.
type ExecutionResult struct {
	Columns     []string      `json:"columns"`
	ColumnTypes []string      `json:"column_types,omitempty"` // driver type names, parallel to Columns
	Rows        [][]any       `json:"rows"`
	Elapsed     time.Duration `json:"elapsed"`
	RowCount    int           `json:"row_count"`
}
