// Package services implements the LLM-backed collaborators used by the
// question pipeline.
package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tessera-data/tessera-engine/pkg/llm"
	"github.com/tessera-data/tessera-engine/pkg/prompts"
	"github.com/tessera-data/tessera-engine/pkg/retry"
)

// SQLGenerationService translates questions into candidate SQL via the
// configured LLM client. Transient provider failures are retried with
// backoff; a malformed response is not, since the validator's rejection
// loop already handles bad SQL.
type SQLGenerationService struct {
	client      llm.LLMClient
	temperature float64
	retryCfg    *retry.Config
	logger      *zap.Logger
}

// NewSQLGenerationService creates the generation collaborator.
func NewSQLGenerationService(client llm.LLMClient, temperature float64, logger *zap.Logger) *SQLGenerationService {
	return &SQLGenerationService{
		client:      client,
		temperature: temperature,
		retryCfg:    retry.DefaultConfig(),
		logger:      logger.Named("sql-generation"),
	}
}

// GenerateSQL implements pipeline.SQLGenerator.
func (s *SQLGenerationService) GenerateSQL(ctx context.Context, gc prompts.GenerationContext) (string, error) {
	prompt := prompts.BuildSQLGenerationPrompt(gc)
	system := prompts.BuildSQLGenerationSystemMessage()

	response, err := retry.DoWithResult(ctx, s.retryCfg, func() (string, error) {
		return s.client.GenerateResponse(ctx, prompt, system, s.temperature)
	})
	if err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}

	sql, err := llm.ExtractSQL(response)
	if err != nil {
		s.logger.Warn("response contained no sql",
			zap.Int("response_len", len(response)))
		return "", fmt.Errorf("extract sql: %w", err)
	}

	return sql, nil
}
