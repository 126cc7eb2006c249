package interfaces

import "context"

// Answerer is the question-answering pipeline behind the assistant.
type Answerer interface {
	Answer(ctx context.Context, question, liveMetrics string) (string, error)
}
