package inference

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"retrieval-pipeline/internal/domain"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedderConfig holds settings for an OpenAI-compatible embedding
// provider.
type OpenAIEmbedderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// OpenAIEmbedder generates embeddings through any OpenAI-compatible API.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	logger     *slog.Logger
}

// NewOpenAIEmbedder creates an OpenAI-compatible embedding provider.
func NewOpenAIEmbedder(cfg OpenAIEmbedderConfig, logger *slog.Logger) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		logger:     logger,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		e.logger.Warn("embed_request_failed",
			slog.String("model", string(e.model)),
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding API returned no data")
	}

	e.logger.Info("embed_completed",
		slog.String("model", string(e.model)),
		slog.Int("dimensions", len(resp.Data[0].Embedding)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))

	return resp.Data[0].Embedding, nil
}

func (e *OpenAIEmbedder) ModelName() string {
	return string(e.model)
}

var _ domain.EmbeddingProvider = (*OpenAIEmbedder)(nil)
