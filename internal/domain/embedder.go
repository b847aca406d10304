package domain

import "context"

// EmbeddingProvider generates a vector embedding for a piece of text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelName returns the model identifier for logging/debugging.
	ModelName() string
}
