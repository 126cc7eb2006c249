package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"ibkr-sma-scanner/internal/api"
	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/store"
	"ibkr-sma-scanner/internal/trace"
)

const defaultBaseURL = "https://api.openai.com/v1"

// DefaultSystem is used when llm.system is empty.
const DefaultSystem = `You are a trading assistant.
RULES:
- Use only facts from the strategy notes AND the Live Metrics embedded inside the user's question.
- If a detail is not in Live Metrics, say you don't have it. Never invent numbers.`

var ErrMissingAPIKey = errors.New("OPENAI_API_KEY missing")

// Answerer answers strategy questions through the chat completions API.
type Answerer struct {
	cfg    *store.Config
	client *api.Client
}

var _ interfaces.Answerer = (*Answerer)(nil)

func New(cfg *store.Config) (*Answerer, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	baseURL := cfg.LLM.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := api.NewClient(
		api.WithBaseURL(strings.TrimRight(baseURL, "/")),
		api.WithHeader("Authorization", "Bearer "+apiKey),
		api.WithLogging(true),
	)
	return &Answerer{cfg: cfg, client: client}, nil
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (a *Answerer) Answer(ctx context.Context, question, liveMetrics string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "openai-api-call")
	defer span.End()

	system := a.cfg.LLM.System
	if system == "" {
		system = DefaultSystem
	}

	body := map[string]any{
		"model": a.cfg.LLM.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": question},
		},
		"temperature": a.cfg.LLM.Temperature,
		"max_tokens":  a.cfg.LLM.MaxTokens,
	}

	req := api.NewRequest("POST", "/chat/completions").WithContext(ctx).WithBody(body)
	resp, err := a.client.DoWithRetry(req, api.DefaultRetryConfig())
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	var r chatResponse
	if err := resp.ParseJSON(&r); err != nil {
		return "", err
	}
	if len(r.Choices) == 0 {
		return "", errors.New("no choices")
	}
	return strings.TrimSpace(r.Choices[0].Message.Content), nil
}
