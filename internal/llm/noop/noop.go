package noop

import (
	"context"
	"errors"

	"ibkr-sma-scanner/internal/logger"
)

// ErrNotLoaded is returned by the noop answerer so callers fall back to the
// "not loaded" message.
var ErrNotLoaded = errors.New("strategy knowledge base not loaded")

// NoopAnswerer is used when no LLM provider is configured.
type NoopAnswerer struct{}

func NewNoopAnswerer() *NoopAnswerer {
	return &NoopAnswerer{}
}

func (a *NoopAnswerer) Answer(ctx context.Context, question, liveMetrics string) (string, error) {
	logger.Debug(ctx, "Noop answerer called")
	return "", ErrNotLoaded
}
