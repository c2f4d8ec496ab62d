package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tessera-data/tessera-engine/pkg/llm"
	"github.com/tessera-data/tessera-engine/pkg/models"
	"github.com/tessera-data/tessera-engine/pkg/prompts"
	"github.com/tessera-data/tessera-engine/pkg/retry"
)

// interpretationTemperature is fixed and slightly higher than generation:
// summaries benefit from natural phrasing, SQL does not.
const interpretationTemperature = 0.3

// InterpretationService produces a plain-language summary of a query
// result. Callers treat its failures as soft; the pipeline degrades to a
// data-only answer.
type InterpretationService struct {
	client   llm.LLMClient
	retryCfg *retry.Config
	logger   *zap.Logger
}

// NewInterpretationService creates the interpretation collaborator.
func NewInterpretationService(client llm.LLMClient, logger *zap.Logger) *InterpretationService {
	return &InterpretationService{
		client:   client,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.Named("interpretation"),
	}
}

// Interpret implements pipeline.Interpreter.
func (s *InterpretationService) Interpret(ctx context.Context, question string, sqlText string, result *models.ExecutionResult, plan models.PresentationPlan) (string, error) {
	prompt := prompts.BuildInterpretationPrompt(question, sqlText, result, plan)
	system := prompts.BuildInterpretationSystemMessage()

	response, err := retry.DoWithResult(ctx, s.retryCfg, func() (string, error) {
		return s.client.GenerateResponse(ctx, prompt, system, interpretationTemperature)
	})
	if err != nil {
		return "", fmt.Errorf("interpret result: %w", err)
	}

	text := strings.TrimSpace(response)
	if text == "" {
		return "", fmt.Errorf("empty interpretation response")
	}
	return text, nil
}
