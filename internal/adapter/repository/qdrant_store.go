package repository

import (
	"context"
	"fmt"

	"retrieval-pipeline/internal/domain"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore runs similarity search against a Qdrant collection whose
// points carry content and source_ref payload fields.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantStore connects to a Qdrant instance.
func NewQdrantStore(host string, port int, collection string) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &QdrantStore{client: client, collection: collection}, nil
}

// Query returns up to limit points ordered by descending cosine similarity.
// A non-empty keyword becomes a full-text match condition on the content
// payload field.
func (s *QdrantStore) Query(ctx context.Context, embedding []float32, limit int, keyword string) ([]domain.Candidate, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if keyword != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchText("content", keyword),
			},
		}
	}

	response, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", s.collection, err)
	}

	candidates := make([]domain.Candidate, 0, len(response))
	for _, point := range response {
		c := domain.Candidate{
			ID:         point.Id.GetUuid(),
			Similarity: float64(point.Score),
		}
		if payload := point.Payload; payload != nil {
			if content, ok := payload["content"]; ok {
				c.Content = content.GetStringValue()
			}
			if ref, ok := payload["source_ref"]; ok {
				c.SourceRef = ref.GetStringValue()
			}
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// Close releases the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

var _ domain.VectorStore = (*QdrantStore)(nil)
