package repository

import (
	"context"
	"fmt"

	"retrieval-pipeline/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgvectorStore runs similarity search over the passages table using
// pgvector's cosine distance operator.
type PgvectorStore struct {
	pool *pgxpool.Pool
}

// NewPgvectorStore creates a pgvector-backed VectorStore.
func NewPgvectorStore(pool *pgxpool.Pool) *PgvectorStore {
	return &PgvectorStore{pool: pool}
}

// Query returns up to limit passages ordered by descending cosine
// similarity. A non-empty keyword becomes a content-containment filter
// applied inside the store; the smaller result set that may produce is not
// an error.
func (s *PgvectorStore) Query(ctx context.Context, embedding []float32, limit int, keyword string) ([]domain.Candidate, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	query := `
		SELECT id, content, source_ref, 1 - (embedding <=> $1) AS similarity
		FROM passages
	`
	args := []any{pgvector.NewVector(embedding)}
	if keyword != "" {
		query += ` WHERE content ILIKE '%' || $2 || '%'`
		args = append(args, keyword)
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query passages: %w", err)
	}
	defer rows.Close()

	var candidates []domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		if err := rows.Scan(&c.ID, &c.Content, &c.SourceRef, &c.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return candidates, nil
}

var _ domain.VectorStore = (*PgvectorStore)(nil)
