package domain

import "context"

// GenerationChunk is one fragment of a streamed completion.
type GenerationChunk struct {
	Delta string
	Done  bool
}

// AnswerGenerator produces a completion as a lazy, finite, non-restartable
// stream of text fragments. The channel is closed after the final chunk.
// Cancelling ctx stops production; consumers cancel by ceasing consumption.
type AnswerGenerator interface {
	GenerateStream(ctx context.Context, prompt string) (<-chan GenerationChunk, error)

	// ModelName returns the model identifier for logging/debugging.
	ModelName() string
}
