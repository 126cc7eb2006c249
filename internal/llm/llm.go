package llm

import (
	"fmt"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/llm/claude"
	"ibkr-sma-scanner/internal/llm/llmobs"
	"ibkr-sma-scanner/internal/llm/noop"
	"ibkr-sma-scanner/internal/llm/openai"
	"ibkr-sma-scanner/internal/store"
)

// New builds the configured answerer. NONE yields the noop answerer, which the
// assistant reports as a missing knowledge base.
func New(cfg *store.Config) (interfaces.Answerer, error) {
	switch cfg.LLM.Provider {
	case "OPENAI":
		a, err := openai.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("openai answerer: %w", err)
		}
		return llmobs.Wrap(a, "openai"), nil
	case "CLAUDE":
		a, err := claude.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("claude answerer: %w", err)
		}
		return llmobs.Wrap(a, "claude"), nil
	default:
		return noop.NewNoopAnswerer(), nil
	}
}
