package llm

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tessera-data/tessera-engine/pkg/config"
)

// NewClientFromConfig builds the provider client selected by configuration
// and wraps it with the shared circuit breaker.
func NewClientFromConfig(cfg config.LLMConfig, logger *zap.Logger) (LLMClient, error) {
	providerCfg := &Config{
		Endpoint: cfg.BaseURL,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		Timeout:  cfg.Timeout(),
	}

	var (
		client LLMClient
		err    error
	)
	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		client, err = NewOpenAIClient(providerCfg, logger)
	case config.LLMProviderAnthropic:
		client, err = NewAnthropicClient(providerCfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	return NewBreakerClient(client, CircuitBreakerConfig{
		Threshold:  cfg.BreakerThreshold,
		ResetAfter: time.Duration(cfg.BreakerResetSeconds) * time.Second,
	}), nil
}
