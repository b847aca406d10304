package domain

import "context"

// RelevanceScorer scores (query, passage) pairs with a cross-encoder model.
// Implementations should call an external scoring service.
type RelevanceScorer interface {
	// ScoreBatch scores all texts against the query in one batched call.
	// The result has the same length and order as texts: result[i] is the
	// predicted relevance of texts[i]. The batch is atomic; there are no
	// partial per-text failures.
	ScoreBatch(ctx context.Context, query string, texts []string) ([]float64, error)

	// ModelName returns the model identifier for logging/debugging.
	ModelName() string
}
