package domain

import "context"

// VectorStore wraps a vector index capable of similarity search.
type VectorStore interface {
	// Query returns up to limit candidates ordered by descending similarity.
	// keyword, when non-empty, is a content-containment predicate applied by
	// the store itself; a result set smaller than limit under a predicate is
	// not an error. Failures are not retried here.
	Query(ctx context.Context, embedding []float32, limit int, keyword string) ([]Candidate, error)
}
