package inference

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestRerankerClient_ScoreBatch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/rerank", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req RerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test query", req.Query)
		assert.Equal(t, "bge-reranker-v2-m3", req.Model)
		require.Len(t, req.Candidates, 3)

		// Results come back in score order; the client must map them onto
		// input positions by index.
		resp := RerankResponse{
			Results: []RerankResponseResult{
				{Index: 1, Score: 0.95},
				{Index: 0, Score: 0.85},
				{Index: 2, Score: 0.75},
			},
			Model: "bge-reranker-v2-m3",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewRerankerClient(server.URL, "bge-reranker-v2-m3", nil, 0, discardLogger())

	scores, err := client.ScoreBatch(context.Background(), "test query",
		[]string{"passage one", "passage two", "passage three"})
	require.NoError(t, err)

	assert.Equal(t, []float64{0.85, 0.95, 0.75}, scores)
}

func TestRerankerClient_ScoreBatch_EmptyInput(t *testing.T) {
	client := NewRerankerClient("http://localhost:8001", "m", nil, 0, discardLogger())

	scores, err := client.ScoreBatch(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestRerankerClient_ScoreBatch_TruncatesLongContent(t *testing.T) {
	var received []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		received = req.Candidates
		_ = json.NewEncoder(w).Encode(RerankResponse{
			Results: []RerankResponseResult{{Index: 0, Score: 0.5}},
		})
	}))
	defer server.Close()

	client := NewRerankerClient(server.URL, "m", nil, 0, discardLogger())
	client.MaxContentChars = 10

	long := strings.Repeat("abcde", 100)
	scores, err := client.ScoreBatch(context.Background(), "q", []string{long})
	require.NoError(t, err)

	assert.Len(t, scores, 1)
	require.Len(t, received, 1)
	assert.Equal(t, long[:10], received[0])
}

func TestRerankerClient_ScoreBatch_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewRerankerClient(server.URL, "m", nil, 0, discardLogger())

	_, err := client.ScoreBatch(context.Background(), "q", []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestRerankerClient_ScoreBatch_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(RerankResponse{
			Results: []RerankResponseResult{{Index: 0, Score: 0.5}},
		})
	}))
	defer server.Close()

	client := NewRerankerClient(server.URL, "m", nil, 0, discardLogger())

	_, err := client.ScoreBatch(context.Background(), "q", []string{"a", "b"})
	assert.Error(t, err, "a partial batch is a failed batch")
}

func TestRerankerClient_ScoreBatch_InvalidIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(RerankResponse{
			Results: []RerankResponseResult{{Index: 5, Score: 0.5}},
		})
	}))
	defer server.Close()

	client := NewRerankerClient(server.URL, "m", nil, 0, discardLogger())

	_, err := client.ScoreBatch(context.Background(), "q", []string{"a"})
	assert.Error(t, err)
}

func TestTruncateContent(t *testing.T) {
	assert.Equal(t, "abc", truncateContent("abc", 10))
	assert.Equal(t, "ab", truncateContent("abc", 2))
	assert.Equal(t, "日本", truncateContent("日本語テキスト", 2), "cuts on rune boundaries")
	assert.Equal(t, "abc", truncateContent("abc", 0), "zero budget disables truncation")
}
