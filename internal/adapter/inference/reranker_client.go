package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"retrieval-pipeline/internal/domain"

	"golang.org/x/time/rate"
)

// defaultMaxContentChars bounds the text sent per candidate so over-long
// passages never exceed the cross-encoder's input window.
const defaultMaxContentChars = 2000

// RerankRequest is the request payload for the rerank endpoint.
type RerankRequest struct {
	Query      string   `json:"query"`
	Candidates []string `json:"candidates"`
	Model      string   `json:"model,omitempty"`
}

// RerankResponseResult is a single result in the rerank response.
type RerankResponseResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// RerankResponse is the response from the rerank endpoint.
type RerankResponse struct {
	Results []RerankResponseResult `json:"results"`
	Model   string                 `json:"model"`
}

// RerankerClient scores query/passage batches via an HTTP cross-encoder
// service. One call scores one whole batch; the batch either fully succeeds
// or fails.
type RerankerClient struct {
	BaseURL         string
	Model           string
	Client          *http.Client
	MaxContentChars int
	limiter         *rate.Limiter
	logger          *slog.Logger
}

// NewRerankerClient constructs a reranker client. rps > 0 rate-limits
// requests; if client is nil a default http.Client is created.
func NewRerankerClient(baseURL, model string, client *http.Client, rps float64, logger *slog.Logger) *RerankerClient {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &RerankerClient{
		BaseURL:         strings.TrimRight(baseURL, "/"),
		Model:           model,
		Client:          client,
		MaxContentChars: defaultMaxContentChars,
		limiter:         limiter,
		logger:          logger,
	}
}

// ScoreBatch scores texts against the query in one batched call. The result
// is aligned with the input: result[i] is the relevance of texts[i].
func (c *RerankerClient) ScoreBatch(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return []float64{}, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	start := time.Now()

	candidates := make([]string, len(texts))
	for i, text := range texts {
		candidates[i] = truncateContent(text, c.MaxContentChars)
	}

	jsonPayload, err := json.Marshal(RerankRequest{
		Query:      query,
		Candidates: candidates,
		Model:      c.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/rerank", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		c.logger.Warn("rerank_request_failed",
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return nil, fmt.Errorf("failed to call rerank endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank endpoint returned %d: %s", resp.StatusCode, truncateContent(string(body), 500))
	}

	var rerankResp RerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rerankResp); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	if len(rerankResp.Results) != len(texts) {
		return nil, fmt.Errorf("expected %d results, got %d", len(texts), len(rerankResp.Results))
	}

	// The service may return results in score order; map them back onto the
	// input positions by index.
	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range rerankResp.Results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("invalid result index %d for %d candidates", r.Index, len(texts))
		}
		if seen[r.Index] {
			return nil, fmt.Errorf("duplicate result index %d", r.Index)
		}
		seen[r.Index] = true
		scores[r.Index] = r.Score
	}

	c.logger.Info("rerank_completed",
		slog.Int("candidate_count", len(texts)),
		slog.String("model", rerankResp.Model),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))

	return scores, nil
}

// ModelName returns the model identifier for logging/debugging.
func (c *RerankerClient) ModelName() string {
	return c.Model
}

// truncateContent cuts s to at most max runes. The cut is deterministic and
// rune-safe so the same passage always produces the same scoring input.
func truncateContent(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

var _ domain.RelevanceScorer = (*RerankerClient)(nil)
