package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"retrieval-pipeline/internal/domain"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatStreamResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// OllamaGenerator streams completions from Ollama's chat endpoint, one
// message fragment per chunk.
type OllamaGenerator struct {
	BaseURL string
	Model   string
	Client  *http.Client
	logger  *slog.Logger
}

// NewOllamaGenerator constructs a streaming generator client. If client is
// nil a default http.Client without a request timeout is used — streams are
// bounded by the caller's context, not a fixed duration.
func NewOllamaGenerator(baseURL, model string, client *http.Client, logger *slog.Logger) *OllamaGenerator {
	if client == nil {
		client = &http.Client{}
	}
	return &OllamaGenerator{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  client,
		logger:  logger,
	}
}

// GenerateStream starts a completion and returns a channel of fragments.
// The channel is closed after the final chunk or when ctx is cancelled.
func (g *OllamaGenerator) GenerateStream(ctx context.Context, prompt string) (<-chan domain.GenerationChunk, error) {
	jsonPayload, err := json.Marshal(chatRequest{
		Model:    g.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   true,
		Options:  map[string]any{"temperature": 0.2},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", g.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call generation endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("generation endpoint returned %d: %s", resp.StatusCode, truncateContent(string(body), 500))
	}

	chunks := make(chan domain.GenerationChunk, 4)
	go g.readStream(ctx, resp.Body, chunks)
	return chunks, nil
}

// readStream decodes the newline-delimited JSON stream until done, error,
// or cancellation.
func (g *OllamaGenerator) readStream(ctx context.Context, body io.ReadCloser, chunks chan<- domain.GenerationChunk) {
	defer close(chunks)
	defer func() { _ = body.Close() }()

	start := time.Now()
	decoder := json.NewDecoder(body)
	for {
		var msg chatStreamResponse
		if err := decoder.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				g.logger.Warn("generation_stream_interrupted",
					slog.String("error", err.Error()),
					slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
			}
			return
		}

		select {
		case chunks <- domain.GenerationChunk{Delta: msg.Message.Content, Done: msg.Done}:
		case <-ctx.Done():
			return
		}

		if msg.Done {
			g.logger.Info("generation_stream_completed",
				slog.String("model", g.Model),
				slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
			return
		}
	}
}

func (g *OllamaGenerator) ModelName() string {
	return g.Model
}

var _ domain.AnswerGenerator = (*OllamaGenerator)(nil)
