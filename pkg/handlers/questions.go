package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/tessera-data/tessera-engine/pkg/models"
	"github.com/tessera-data/tessera-engine/pkg/pipeline"
)

// maxQuestionLength bounds request size; anything longer is noise or abuse.
const maxQuestionLength = 2000

// QuestionRunner is the pipeline surface the handler depends on.
type QuestionRunner interface {
	Run(ctx context.Context, req models.PipelineRequest) *pipeline.Outcome
}

// QuestionRequest is the POST /v1/questions request body.
type QuestionRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

// QuestionHandler answers natural language questions about the connected
// database.
type QuestionHandler struct {
	runner QuestionRunner
	logger *zap.Logger
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(runner QuestionRunner, logger *zap.Logger) *QuestionHandler {
	return &QuestionHandler{runner: runner, logger: logger}
}

// RegisterRoutes registers the question handler's routes on the given mux.
func (h *QuestionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/questions", h.Ask)
}

// Ask handles POST /v1/questions. The pipeline outcome is returned as-is;
// failed runs map to an HTTP status by failure reason.
func (h *QuestionHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body"); err != nil {
			h.logger.Error("Failed to encode error response", zap.Error(err))
		}
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_question", "Field 'question' is required"); err != nil {
			h.logger.Error("Failed to encode error response", zap.Error(err))
		}
		return
	}
	if len(req.Question) > maxQuestionLength {
		if err := ErrorResponse(w, http.StatusBadRequest, "question_too_long", "Question exceeds maximum length"); err != nil {
			h.logger.Error("Failed to encode error response", zap.Error(err))
		}
		return
	}

	outcome := h.runner.Run(r.Context(), models.PipelineRequest{
		Question:  req.Question,
		SessionID: req.SessionID,
	})

	status := http.StatusOK
	if outcome.Status == pipeline.StatusFailed {
		status = failureStatus(outcome.Failure.Reason)
	}

	if err := WriteJSON(w, status, outcome); err != nil {
		h.logger.Error("Failed to encode question response", zap.Error(err))
	}
}

// failureStatus maps pipeline failure reasons to HTTP status codes.
func failureStatus(reason pipeline.FailureReason) int {
	switch reason {
	case pipeline.FailureValidationExhausted:
		// The question produced only unsafe or unsupported SQL; the
		// request itself is the problem, not the service.
		return http.StatusUnprocessableEntity
	case pipeline.FailureCancelled:
		return 499 // client closed request
	case pipeline.FailureSchemaUnavailable, pipeline.FailureGenerationUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
