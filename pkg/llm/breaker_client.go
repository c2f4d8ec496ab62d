package llm

import (
	"context"
)

// BreakerClient wraps an LLMClient with a circuit breaker. All pipeline runs
// share one wrapped client, so a downed provider trips the breaker once and
// subsequent runs fail fast instead of each waiting out a timeout.
type BreakerClient struct {
	inner   LLMClient
	breaker *CircuitBreaker
}

// NewBreakerClient wraps a client with circuit breaker protection.
func NewBreakerClient(inner LLMClient, config CircuitBreakerConfig) *BreakerClient {
	return &BreakerClient{
		inner:   inner,
		breaker: NewCircuitBreaker(config),
	}
}

// GenerateResponse implements LLMClient. Context cancellation is not
// counted as a provider failure.
func (c *BreakerClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error) {
	if err := c.breaker.Allow(); err != nil {
		return "", err
	}

	content, err := c.inner.GenerateResponse(ctx, prompt, systemMessage, temperature)
	if err != nil {
		if ctx.Err() == nil {
			c.breaker.RecordFailure()
		}
		return "", err
	}

	c.breaker.RecordSuccess()
	return content, nil
}

// GetModel implements LLMClient.
func (c *BreakerClient) GetModel() string {
	return c.inner.GetModel()
}

// GetEndpoint implements LLMClient.
func (c *BreakerClient) GetEndpoint() string {
	return c.inner.GetEndpoint()
}

// BreakerState exposes the breaker state for health reporting.
func (c *BreakerClient) BreakerState() CircuitState {
	return c.breaker.State()
}
