package usecase_test

import (
	"testing"

	"retrieval-pipeline/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPipelineConfig(t *testing.T) {
	cfg := usecase.DefaultPipelineConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 4, cfg.OverFetchFactor)
	assert.Equal(t, 20, cfg.MaxOverFetch)
	assert.InDelta(t, 0.3, cfg.Weights.Similarity, 1e-9)
	assert.InDelta(t, 0.7, cfg.Weights.Relevance, 1e-9)
	assert.False(t, cfg.FallbackOnRerankError, "default is fail-closed")
}

func TestPipelineConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*usecase.PipelineConfig)
	}{
		{"zero over-fetch factor", func(c *usecase.PipelineConfig) { c.OverFetchFactor = 0 }},
		{"zero max over-fetch", func(c *usecase.PipelineConfig) { c.MaxOverFetch = 0 }},
		{"negative similarity weight", func(c *usecase.PipelineConfig) { c.Weights.Similarity = -0.1 }},
		{"negative relevance weight", func(c *usecase.PipelineConfig) { c.Weights.Relevance = -1 }},
		{"all-zero weights", func(c *usecase.PipelineConfig) {
			c.Weights.Similarity = 0
			c.Weights.Relevance = 0
		}},
		{"zero embed timeout", func(c *usecase.PipelineConfig) { c.EmbedTimeout = 0 }},
		{"zero rerank timeout", func(c *usecase.PipelineConfig) { c.RerankTimeout = 0 }},
		{"negative concurrency bound", func(c *usecase.PipelineConfig) { c.MaxConcurrentModelCalls = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := usecase.DefaultPipelineConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
