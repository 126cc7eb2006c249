package llmobs

import (
	"context"

	"ibkr-sma-scanner/internal/interfaces"
	"ibkr-sma-scanner/internal/logger"
	"ibkr-sma-scanner/internal/trace"
)

// observableAnswerer wraps an Answerer with logging and tracing
type observableAnswerer struct {
	answerer interfaces.Answerer
	provider string
}

var _ interfaces.Answerer = (*observableAnswerer)(nil)

func Wrap(answerer interfaces.Answerer, provider string) interfaces.Answerer {
	return &observableAnswerer{answerer: answerer, provider: provider}
}

func (oa *observableAnswerer) Answer(ctx context.Context, question, liveMetrics string) (string, error) {
	ctx, span := trace.StartSpan(ctx, "llm.Answer")
	defer span.End()

	// report the caller, not this wrapper
	logger.DebugSkip(ctx, 1, "Requesting strategy answer",
		"provider", oa.provider,
		"question_len", len(question),
		"has_metrics", liveMetrics != "" && liveMetrics != "(none)",
	)

	answer, err := oa.answerer.Answer(ctx, question, liveMetrics)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to get strategy answer", err, "provider", oa.provider)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Strategy answer received", "provider", oa.provider, "answer_len", len(answer))
	return answer, nil
}
