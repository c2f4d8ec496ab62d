package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tessera-data/tessera-engine/pkg/models"
	"github.com/tessera-data/tessera-engine/pkg/pipeline"
)

type stubRunner struct {
	outcome *pipeline.Outcome
	lastReq models.PipelineRequest
}

func (s *stubRunner) Run(ctx context.Context, req models.PipelineRequest) *pipeline.Outcome {
	s.lastReq = req
	return s.outcome
}

type stubSchemaProvider struct {
	snapshot *models.SchemaSnapshot
	stale    bool
	err      error
}

func (s *stubSchemaProvider) Snapshot(ctx context.Context) (*models.SchemaSnapshot, bool, error) {
	return s.snapshot, s.stale, s.err
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestAskDatabase_Success(t *testing.T) {
	runner := &stubRunner{
		outcome: &pipeline.Outcome{
			Status: pipeline.StatusDone,
			SQL:    "SELECT region, SUM(total) FROM orders GROUP BY region LIMIT 1000",
			Result: &models.ExecutionResult{
				Columns:  []string{"region", "sum"},
				Rows:     [][]any{{"EMEA", 1200.5}},
				RowCount: 1,
			},
			Presentation:   models.PresentationPlan{Kind: models.PresentationBar, XColumn: "region", YColumn: "sum"},
			Interpretation: "EMEA leads.",
		},
	}
	deps := &ToolDeps{Runner: runner, Logger: zap.NewNop()}

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"question": "Revenue by region?"}

	result, err := askDatabaseHandler(deps)(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &resp))
	assert.Equal(t, "SELECT region, SUM(total) FROM orders GROUP BY region LIMIT 1000", resp["sql"])
	assert.Equal(t, float64(1), resp["row_count"])
	assert.Equal(t, "EMEA leads.", resp["interpretation"])

	presentation, ok := resp["presentation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bar", presentation["kind"])
	assert.Equal(t, "Revenue by region?", runner.lastReq.Question)
}

func TestAskDatabase_EmptyQuestion(t *testing.T) {
	deps := &ToolDeps{Runner: &stubRunner{}, Logger: zap.NewNop()}

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"question": "   "}

	result, err := askDatabaseHandler(deps)(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "invalid_parameters")
}

func TestAskDatabase_FailureCarriesReasonAndAttempts(t *testing.T) {
	runner := &stubRunner{
		outcome: &pipeline.Outcome{
			Status: pipeline.StatusFailed,
			Failure: &pipeline.Failure{
				Reason: pipeline.FailureValidationExhausted,
				Detail: "all generation attempts failed validation; last rejection: denied statement: DROP",
			},
			Diagnostics: pipeline.Diagnostics{
				Attempts: []pipeline.Attempt{
					{SQL: "DROP TABLE orders", Reasons: []string{"denied statement: DROP"}},
				},
			},
		},
	}
	deps := &ToolDeps{Runner: runner, Logger: zap.NewNop()}

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"question": "Drop all data"}

	result, err := askDatabaseHandler(deps)(context.Background(), req)
	require.NoError(t, err, "pipeline failures are tool results, not Go errors")
	assert.True(t, result.IsError)

	text := toolText(t, result)
	assert.Contains(t, text, "validation_exhausted")
	assert.Contains(t, text, "denied statement: DROP")
}

func TestGetSchema_RendersSnapshot(t *testing.T) {
	schema := &stubSchemaProvider{
		snapshot: &models.SchemaSnapshot{
			Tables: []models.TableDescriptor{
				{
					SchemaName: "public",
					TableName:  "orders",
					Columns: []models.ColumnDescriptor{
						{Name: "id", DataType: "integer", Ordinal: 1},
						{Name: "note", DataType: "text", Nullable: true, Ordinal: 2},
					},
				},
			},
			CapturedAt: time.Unix(1700000000, 0).UTC(),
		},
		stale: true,
	}
	deps := &ToolDeps{Schema: schema, Logger: zap.NewNop()}

	result, err := getSchemaHandler(deps)(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp getSchemaResponse
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &resp))
	require.Len(t, resp.Tables, 1)
	assert.Equal(t, "public.orders", resp.Tables[0].Name)
	require.Len(t, resp.Tables[0].Columns, 2)
	assert.True(t, resp.Tables[0].Columns[1].Nullable)
	assert.True(t, resp.Stale)
	assert.Equal(t, "2023-11-14T22:13:20Z", resp.CapturedAt)
}

func TestGetSchema_Unavailable(t *testing.T) {
	deps := &ToolDeps{
		Schema: &stubSchemaProvider{err: errors.New("connection refused")},
		Logger: zap.NewNop(),
	}

	result, err := getSchemaHandler(deps)(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "schema_unavailable")
}

func TestRegisterTools(t *testing.T) {
	s := NewServer("tessera-engine", "0.1.0", zap.NewNop())
	RegisterTools(s, &ToolDeps{
		Runner: &stubRunner{},
		Schema: &stubSchemaProvider{},
		Logger: zap.NewNop(),
	})
	require.NotNil(t, s.MCP())
	require.NotNil(t, s.NewStreamableHTTPServer())
}
