package usecase

import (
	"fmt"
	"time"

	"retrieval-pipeline/internal/domain"
)

// PipelineConfig holds tunable parameters for the retrieval pipeline.
// The defaults are illustrative starting points, not evaluated optima;
// deployments are expected to override them per corpus.
type PipelineConfig struct {
	// OverFetchFactor is the multiplier on the requested result count when
	// fetching the rerank candidate pool.
	OverFetchFactor int

	// MaxOverFetch caps the candidate pool size regardless of factor.
	MaxOverFetch int

	// Weights mix similarity and relevance into the final ranking key.
	Weights domain.FusionWeights

	// FallbackOnRerankError enables the degraded mode: on a rerank failure
	// the pipeline returns similarity-only ranking instead of failing the
	// call. Default is fail-closed.
	FallbackOnRerankError bool

	// Per-stage deadlines for the three blocking collaborator calls.
	EmbedTimeout  time.Duration
	FetchTimeout  time.Duration
	RerankTimeout time.Duration

	// MaxConcurrentModelCalls bounds in-flight embedding and rerank
	// invocations across all concurrent searches, protecting the model
	// services from overload. Zero disables the bound.
	MaxConcurrentModelCalls int64
}

// DefaultPipelineConfig returns the stock configuration: 4x over-fetch capped
// at 20 candidates, 0.3/0.7 similarity/relevance weights, fail-closed.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		OverFetchFactor:         4,
		MaxOverFetch:            20,
		Weights:                 domain.FusionWeights{Similarity: 0.3, Relevance: 0.7},
		FallbackOnRerankError:   false,
		EmbedTimeout:            10 * time.Second,
		FetchTimeout:            5 * time.Second,
		RerankTimeout:           30 * time.Second,
		MaxConcurrentModelCalls: 8,
	}
}

// Validate checks that the configuration values are usable.
func (c PipelineConfig) Validate() error {
	if c.OverFetchFactor <= 0 {
		return fmt.Errorf("overFetchFactor must be positive, got %d", c.OverFetchFactor)
	}
	if c.MaxOverFetch <= 0 {
		return fmt.Errorf("maxOverFetch must be positive, got %d", c.MaxOverFetch)
	}
	if c.Weights.Similarity < 0 || c.Weights.Relevance < 0 {
		return fmt.Errorf("fusion weights must be non-negative, got %f/%f",
			c.Weights.Similarity, c.Weights.Relevance)
	}
	if c.Weights.Similarity == 0 && c.Weights.Relevance == 0 {
		return fmt.Errorf("at least one fusion weight must be positive")
	}
	if c.EmbedTimeout <= 0 || c.FetchTimeout <= 0 || c.RerankTimeout <= 0 {
		return fmt.Errorf("stage timeouts must be positive, got embed=%v fetch=%v rerank=%v",
			c.EmbedTimeout, c.FetchTimeout, c.RerankTimeout)
	}
	if c.MaxConcurrentModelCalls < 0 {
		return fmt.Errorf("maxConcurrentModelCalls must be non-negative, got %d", c.MaxConcurrentModelCalls)
	}
	return nil
}
