package domain

import "context"

// EmbeddingCache stores query embeddings with a bounded lifetime. The TTL is
// fixed at construction time. Implementations must be safe for concurrent
// Get/Put; Put is last-write-wins. A Get must never return an expired entry.
//
// The cache is a performance optimization, not a correctness dependency:
// implementations log storage failures and report them as misses instead of
// returning errors.
type EmbeddingCache interface {
	Get(ctx context.Context, query string) ([]float32, bool)
	Put(ctx context.Context, query string, embedding []float32)
}
