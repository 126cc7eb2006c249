package claude

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"ibkr-sma-scanner/internal/api"
	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/llm/openai"
	"ibkr-sma-scanner/internal/store"
	"ibkr-sma-scanner/internal/trace"
)

const (
	defaultEndpoint = "https://api.anthropic.com/v1/messages"
	apiVersion      = "2023-06-01"
)

var ErrMissingAPIKey = errors.New("CLAUDE_API_KEY missing")

// Answerer calls the Anthropic Messages API.
type Answerer struct {
	cfg      *store.Config
	client   *api.Client
	endpoint string
}

var _ interfaces.Answerer = (*Answerer)(nil)

// New reads CLAUDE_API_KEY. The endpoint is llm.base_url, then
// CLAUDE_API_ENDPOINT, then the public API.
func New(cfg *store.Config) (*Answerer, error) {
	apiKey := os.Getenv("CLAUDE_API_KEY")
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	endpoint := defaultEndpoint
	if ep := os.Getenv("CLAUDE_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	if cfg.LLM.BaseURL != "" {
		endpoint = cfg.LLM.BaseURL
	}
	client := api.NewClient(
		api.WithHeader("x-api-key", apiKey),
		api.WithHeader("anthropic-version", apiVersion),
		api.WithLogging(true),
	)
	return &Answerer{cfg: cfg, client: client, endpoint: endpoint}, nil
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (a *Answerer) Answer(ctx context.Context, question, liveMetrics string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "claude-api-call")
	defer span.End()

	logger.Debug(ctx, "Claude answerer called", "model", a.cfg.LLM.Model, "endpoint", a.endpoint)

	system := a.cfg.LLM.System
	if system == "" {
		system = openai.DefaultSystem
	}
	body := map[string]any{
		"model":       a.cfg.LLM.Model,
		"system":      system,
		"messages":    []map[string]string{{"role": "user", "content": question}},
		"max_tokens":  a.cfg.LLM.MaxTokens,
		"temperature": a.cfg.LLM.Temperature,
	}

	req := api.NewRequest("POST", a.endpoint).WithContext(ctx).WithBody(body)
	resp, err := a.client.DoWithRetry(req, api.DefaultRetryConfig())
	if err != nil {
		return "", fmt.Errorf("claude messages: %w", err)
	}

	var r messagesResponse
	if err := resp.ParseJSON(&r); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", errors.New("empty claude response")
	}
	return out, nil
}
