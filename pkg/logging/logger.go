package logging

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger: human-readable console output for
// local development, JSON for everything else.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
