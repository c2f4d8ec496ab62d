package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/tessera-data/tessera-engine/pkg/models"
	"github.com/tessera-data/tessera-engine/pkg/pipeline"
)

// QuestionRunner is the pipeline surface the tools depend on.
type QuestionRunner interface {
	Run(ctx context.Context, req models.PipelineRequest) *pipeline.Outcome
}

// ToolDeps defines dependencies for the engine's MCP tools.
type ToolDeps struct {
	Runner QuestionRunner
	Schema pipeline.SchemaProvider
	Logger *zap.Logger
}

// RegisterTools registers the ask_database and get_schema tools.
func RegisterTools(s *Server, deps *ToolDeps) {
	registerAskDatabaseTool(s, deps)
	registerGetSchemaTool(s, deps)
}

// askDatabaseResponse is the response format for ask_database.
type askDatabaseResponse struct {
	SQL            string                  `json:"sql"`
	Columns        []string                `json:"columns"`
	Rows           [][]any                 `json:"rows"`
	RowCount       int                     `json:"row_count"`
	Presentation   models.PresentationPlan `json:"presentation"`
	Interpretation string                  `json:"interpretation,omitempty"`
	SchemaStale    bool                    `json:"schema_stale,omitempty"`
}

func registerAskDatabaseTool(s *Server, deps *ToolDeps) {
	tool := mcp.NewTool(
		"ask_database",
		mcp.WithDescription(`Answer a natural language question about the connected database.
Generates a read-only SQL query, runs it, and returns the results with a
suggested presentation (table, bar, line, or pie) and a short summary.`),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer, in plain language")),
	)

	s.RegisterTool(tool, askDatabaseHandler(deps))
}

func askDatabaseHandler(deps *ToolDeps) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]any)

		question, _ := args["question"].(string)
		question = strings.TrimSpace(question)
		if question == "" {
			return NewErrorResult("invalid_parameters", "parameter 'question' cannot be empty"), nil
		}

		outcome := deps.Runner.Run(ctx, models.PipelineRequest{Question: question})
		if outcome.Status == pipeline.StatusFailed {
			return NewErrorResultWithDetails(
				string(outcome.Failure.Reason),
				outcome.Failure.Detail,
				map[string]any{"attempts": outcome.Diagnostics.Attempts},
			), nil
		}

		resp := askDatabaseResponse{
			SQL:            outcome.SQL,
			Presentation:   outcome.Presentation,
			Interpretation: outcome.Interpretation,
			SchemaStale:    outcome.Diagnostics.SchemaStale,
		}
		if outcome.Result != nil {
			resp.Columns = outcome.Result.Columns
			resp.Rows = outcome.Result.Rows
			resp.RowCount = outcome.Result.RowCount
		}

		jsonResult, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("marshal ask_database response: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	}
}

// schemaTableInfo represents one table in the get_schema response.
type schemaTableInfo struct {
	Name    string             `json:"name"`
	Columns []schemaColumnInfo `json:"columns"`
}

type schemaColumnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// getSchemaResponse is the response format for get_schema.
type getSchemaResponse struct {
	Tables     []schemaTableInfo `json:"tables"`
	CapturedAt string            `json:"captured_at"`
	Stale      bool              `json:"stale,omitempty"`
}

func registerGetSchemaTool(s *Server, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_schema",
		mcp.WithDescription(`List the tables and columns of the connected database.
Serves the cached schema snapshot; use this to see what ask_database can query.`),
	)

	s.RegisterTool(tool, getSchemaHandler(deps))
}

func getSchemaHandler(deps *ToolDeps) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snapshot, stale, err := deps.Schema.Snapshot(ctx)
		if err != nil {
			deps.Logger.Warn("get_schema failed", zap.Error(err))
			return NewErrorResult("schema_unavailable", "no schema snapshot available"), nil
		}

		resp := getSchemaResponse{
			Tables:     make([]schemaTableInfo, 0, len(snapshot.Tables)),
			CapturedAt: snapshot.CapturedAt.Format(time.RFC3339),
			Stale:      stale,
		}
		for _, table := range snapshot.Tables {
			info := schemaTableInfo{
				Name:    table.QualifiedName(),
				Columns: make([]schemaColumnInfo, 0, len(table.Columns)),
			}
			for _, col := range table.Columns {
				info.Columns = append(info.Columns, schemaColumnInfo{
					Name:     col.Name,
					DataType: col.DataType,
					Nullable: col.Nullable,
				})
			}
			resp.Tables = append(resp.Tables, info)
		}

		jsonResult, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("marshal get_schema response: %w", err)
		}
		return mcp.NewToolResultText(string(jsonResult)), nil
	}
}
