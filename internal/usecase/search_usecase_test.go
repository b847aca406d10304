package usecase_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"retrieval-pipeline/internal/domain"
	"retrieval-pipeline/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEmbeddingProvider is a test double for domain.EmbeddingProvider.
type MockEmbeddingProvider struct {
	mock.Mock
}

func (m *MockEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbeddingProvider) ModelName() string { return "mock-embedder" }

// MockVectorStore is a test double for domain.VectorStore.
type MockVectorStore struct {
	mock.Mock
}

func (m *MockVectorStore) Query(ctx context.Context, embedding []float32, limit int, keyword string) ([]domain.Candidate, error) {
	args := m.Called(ctx, embedding, limit, keyword)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Candidate), args.Error(1)
}

// MockRelevanceScorer is a test double for domain.RelevanceScorer.
type MockRelevanceScorer struct {
	mock.Mock
}

func (m *MockRelevanceScorer) ScoreBatch(ctx context.Context, query string, texts []string) ([]float64, error) {
	args := m.Called(ctx, query, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

func (m *MockRelevanceScorer) ModelName() string { return "mock-scorer" }

// fakeCache is an in-memory domain.EmbeddingCache without expiry.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]float32
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]float32)}
}

func (c *fakeCache) Get(_ context.Context, query string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vec, ok := c.entries[query]
	return vec, ok
}

func (c *fakeCache) Put(_ context.Context, query string, embedding []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[query] = embedding
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func sixCandidates() []domain.Candidate {
	sims := []float64{0.9, 0.85, 0.8, 0.75, 0.7, 0.65}
	candidates := make([]domain.Candidate, len(sims))
	for i, s := range sims {
		candidates[i] = domain.Candidate{
			ID:         "candidate-" + string(rune('1'+i)),
			Content:    "passage " + string(rune('1'+i)),
			SourceRef:  "doc-a",
			Similarity: s,
		}
	}
	return candidates
}

func TestSearchUsecase_InvalidArguments(t *testing.T) {
	u := usecase.NewSearchUsecase(
		new(MockEmbeddingProvider), new(MockVectorStore), new(MockRelevanceScorer),
		newFakeCache(), usecase.DefaultPipelineConfig(), testLogger())

	tests := []struct {
		name  string
		input usecase.SearchInput
	}{
		{"empty query", usecase.SearchInput{Query: "   ", NResults: 3}},
		{"zero n_results", usecase.SearchInput{Query: "budget plan", NResults: 0}},
		{"negative n_results", usecase.SearchInput{Query: "budget plan", NResults: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := u.Execute(context.Background(), tt.input)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestSearchUsecase_WorkedScenario(t *testing.T) {
	// "budget plan", 6 candidates, n_results=3, over-fetch=6, weights 0.3/0.7.
	embedder := new(MockEmbeddingProvider)
	store := new(MockVectorStore)
	scorer := new(MockRelevanceScorer)
	cache := newFakeCache()

	embedding := []float32{0.1, 0.2}
	embedder.On("Embed", mock.Anything, "budget plan").Return(embedding, nil).Once()
	store.On("Query", mock.Anything, embedding, 6, "").Return(sixCandidates(), nil).Once()
	scorer.On("ScoreBatch", mock.Anything, "budget plan", mock.Anything).
		Return([]float64{0.2, 0.9, 0.1, 0.3, 0.95, 0.4}, nil).Once()

	u := usecase.NewSearchUsecase(embedder, store, scorer, cache, usecase.DefaultPipelineConfig(), testLogger())

	out, err := u.Execute(context.Background(), usecase.SearchInput{
		Query:         "budget plan",
		NResults:      3,
		RerankEnabled: true,
		OverFetch:     6,
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 3)
	assert.True(t, out.Reranked)

	assert.Equal(t, "candidate-2", out.Results[0].ID)
	assert.InDelta(t, 0.885, out.Results[0].Fused, 1e-9)
	assert.Equal(t, "candidate-5", out.Results[1].ID)
	assert.InDelta(t, 0.875, out.Results[1].Fused, 1e-9)
	assert.Equal(t, "candidate-6", out.Results[2].ID)
	assert.InDelta(t, 0.475, out.Results[2].Fused, 1e-9)

	embedder.AssertExpectations(t)
	store.AssertExpectations(t)
	scorer.AssertExpectations(t)
}

func TestSearchUsecase_Determinism(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	store := new(MockVectorStore)
	scorer := new(MockRelevanceScorer)
	cache := newFakeCache()

	embedding := []float32{0.1, 0.2}
	embedder.On("Embed", mock.Anything, "budget plan").Return(embedding, nil)
	store.On("Query", mock.Anything, embedding, mock.Anything, "").Return(sixCandidates(), nil)
	scorer.On("ScoreBatch", mock.Anything, "budget plan", mock.Anything).
		Return([]float64{0.2, 0.9, 0.1, 0.3, 0.95, 0.4}, nil)

	u := usecase.NewSearchUsecase(embedder, store, scorer, cache, usecase.DefaultPipelineConfig(), testLogger())
	input := usecase.SearchInput{Query: "budget plan", NResults: 3, RerankEnabled: true}

	first, err := u.Execute(context.Background(), input)
	require.NoError(t, err)
	second, err := u.Execute(context.Background(), input)
	require.NoError(t, err)

	require.Equal(t, len(first.Results), len(second.Results))
	for i := range first.Results {
		assert.Equal(t, first.Results[i].ID, second.Results[i].ID)
		assert.Equal(t, first.Results[i].Fused, second.Results[i].Fused)
	}
}

func TestSearchUsecase_CacheHitSkipsEmbedding(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	store := new(MockVectorStore)
	scorer := new(MockRelevanceScorer)
	cache := newFakeCache()
	cache.Put(context.Background(), "budget plan", []float32{0.1, 0.2})

	store.On("Query", mock.Anything, []float32{0.1, 0.2}, mock.Anything, "").
		Return(sixCandidates()[:2], nil).Once()

	u := usecase.NewSearchUsecase(embedder, store, scorer, cache, usecase.DefaultPipelineConfig(), testLogger())

	// The query is normalized before the cache lookup.
	out, err := u.Execute(context.Background(), usecase.SearchInput{
		Query: "  budget plan  ", NResults: 3, RerankEnabled: true,
	})
	require.NoError(t, err)
	assert.Len(t, out.Results, 2)

	embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
}

func TestSearchUsecase_MissPopulatesCache(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	store := new(MockVectorStore)
	cache := newFakeCache()

	embedding := []float32{0.5, 0.6}
	embedder.On("Embed", mock.Anything, "budget plan").Return(embedding, nil).Once()
	store.On("Query", mock.Anything, embedding, mock.Anything, "").Return([]domain.Candidate{}, nil).Twice()

	u := usecase.NewSearchUsecase(embedder, store, new(MockRelevanceScorer), cache,
		usecase.DefaultPipelineConfig(), testLogger())
	input := usecase.SearchInput{Query: "budget plan", NResults: 3}

	_, err := u.Execute(context.Background(), input)
	require.NoError(t, err)
	_, err = u.Execute(context.Background(), input)
	require.NoError(t, err)

	// Second call must come from the cache.
	embedder.AssertNumberOfCalls(t, "Embed", 1)
}

func TestSearchUsecase_ShortCircuitSkipsReranker(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	store := new(MockVectorStore)
	scorer := new(MockRelevanceScorer)

	embedding := []float32{0.1, 0.2}
	embedder.On("Embed", mock.Anything, "budget plan").Return(embedding, nil)
	// Fewer candidates than requested results: no quality benefit in reranking.
	store.On("Query", mock.Anything, embedding, mock.Anything, "").Return(sixCandidates()[:3], nil)

	u := usecase.NewSearchUsecase(embedder, store, scorer, newFakeCache(),
		usecase.DefaultPipelineConfig(), testLogger())

	out, err := u.Execute(context.Background(), usecase.SearchInput{
		Query: "budget plan", NResults: 5, RerankEnabled: true,
	})
	require.NoError(t, err)

	scorer.AssertNotCalled(t, "ScoreBatch", mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, out.Reranked)

	// Output order equals descending similarity, fused mirrors similarity.
	require.Len(t, out.Results, 3)
	for i, want := range []float64{0.9, 0.85, 0.8} {
		assert.InDelta(t, want, out.Results[i].Similarity, 1e-9)
		assert.InDelta(t, want, out.Results[i].Fused, 1e-9)
		assert.False(t, out.Results[i].Reranked)
	}
}

func TestSearchUsecase_RerankDisabled(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	store := new(MockVectorStore)
	scorer := new(MockRelevanceScorer)

	embedding := []float32{0.1, 0.2}
	embedder.On("Embed", mock.Anything, "budget plan").Return(embedding, nil)
	store.On("Query", mock.Anything, embedding, mock.Anything, "").Return(sixCandidates(), nil)

	u := usecase.NewSearchUsecase(embedder, store, scorer, newFakeCache(),
		usecase.DefaultPipelineConfig(), testLogger())

	out, err := u.Execute(context.Background(), usecase.SearchInput{
		Query: "budget plan", NResults: 3, RerankEnabled: false,
	})
	require.NoError(t, err)

	scorer.AssertNotCalled(t, "ScoreBatch", mock.Anything, mock.Anything, mock.Anything)
	require.Len(t, out.Results, 3)
	assert.Equal(t, "candidate-1", out.Results[0].ID)
}

func TestSearchUsecase_OverFetchClamping(t *testing.T) {
	tests := []struct {
		name      string
		nResults  int
		overFetch int
		wantLimit int
	}{
		{"factor applied", 3, 0, 12},
		{"factor capped at maximum", 10, 0, 20},
		{"caller override", 3, 6, 6},
		{"override capped at maximum", 3, 50, 20},
		{"never below requested count", 19, 2, 19},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := new(MockEmbeddingProvider)
			store := new(MockVectorStore)
			embedding := []float32{0.1}
			embedder.On("Embed", mock.Anything, "q").Return(embedding, nil)
			store.On("Query", mock.Anything, embedding, tt.wantLimit, "").
				Return([]domain.Candidate{}, nil).Once()

			u := usecase.NewSearchUsecase(embedder, store, new(MockRelevanceScorer),
				newFakeCache(), usecase.DefaultPipelineConfig(), testLogger())

			_, err := u.Execute(context.Background(), usecase.SearchInput{
				Query: "q", NResults: tt.nResults, OverFetch: tt.overFetch,
			})
			require.NoError(t, err)
			store.AssertExpectations(t)
		})
	}
}

func TestSearchUsecase_KeywordPassedThrough(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	store := new(MockVectorStore)

	embedding := []float32{0.1}
	embedder.On("Embed", mock.Anything, "budget plan").Return(embedding, nil)
	store.On("Query", mock.Anything, embedding, mock.Anything, "fiscal").
		Return(sixCandidates()[:1], nil).Once()

	u := usecase.NewSearchUsecase(embedder, store, new(MockRelevanceScorer),
		newFakeCache(), usecase.DefaultPipelineConfig(), testLogger())

	out, err := u.Execute(context.Background(), usecase.SearchInput{
		Query: "budget plan", NResults: 3, Keyword: "fiscal",
	})
	require.NoError(t, err)
	// A predicate-filtered set smaller than n_results is a valid result.
	assert.Len(t, out.Results, 1)
	store.AssertExpectations(t)
}

func TestSearchUsecase_EmbeddingFailurePropagates(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	embedder.On("Embed", mock.Anything, "budget plan").Return(nil, errors.New("model down"))

	u := usecase.NewSearchUsecase(embedder, new(MockVectorStore), new(MockRelevanceScorer),
		newFakeCache(), usecase.DefaultPipelineConfig(), testLogger())

	_, err := u.Execute(context.Background(), usecase.SearchInput{Query: "budget plan", NResults: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingFailure)

	stage, ok := domain.FailingStage(err)
	require.True(t, ok)
	assert.Equal(t, domain.StageEmbed, stage)
}

func TestSearchUsecase_RetrievalFailurePropagates(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	store := new(MockVectorStore)
	embedder.On("Embed", mock.Anything, "budget plan").Return([]float32{0.1}, nil)
	store.On("Query", mock.Anything, mock.Anything, mock.Anything, "").
		Return(nil, errors.New("store unreachable"))

	u := usecase.NewSearchUsecase(embedder, store, new(MockRelevanceScorer),
		newFakeCache(), usecase.DefaultPipelineConfig(), testLogger())

	_, err := u.Execute(context.Background(), usecase.SearchInput{Query: "budget plan", NResults: 3})
	assert.ErrorIs(t, err, domain.ErrRetrievalFailure)
}

func TestSearchUsecase_RerankFailure_FailClosed(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	store := new(MockVectorStore)
	scorer := new(MockRelevanceScorer)

	embedder.On("Embed", mock.Anything, "budget plan").Return([]float32{0.1}, nil)
	store.On("Query", mock.Anything, mock.Anything, mock.Anything, "").Return(sixCandidates(), nil)
	scorer.On("ScoreBatch", mock.Anything, "budget plan", mock.Anything).
		Return(nil, errors.New("scorer down"))

	u := usecase.NewSearchUsecase(embedder, store, scorer, newFakeCache(),
		usecase.DefaultPipelineConfig(), testLogger())

	out, err := u.Execute(context.Background(), usecase.SearchInput{
		Query: "budget plan", NResults: 3, RerankEnabled: true,
	})
	require.Error(t, err, "no partial list on rerank failure")
	assert.Nil(t, out)
	assert.ErrorIs(t, err, domain.ErrRerankFailure)
}

func TestSearchUsecase_RerankFailure_DegradedFallback(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	store := new(MockVectorStore)
	scorer := new(MockRelevanceScorer)

	embedder.On("Embed", mock.Anything, "budget plan").Return([]float32{0.1}, nil)
	store.On("Query", mock.Anything, mock.Anything, mock.Anything, "").Return(sixCandidates(), nil)
	scorer.On("ScoreBatch", mock.Anything, "budget plan", mock.Anything).
		Return(nil, errors.New("scorer down"))

	cfg := usecase.DefaultPipelineConfig()
	cfg.FallbackOnRerankError = true
	u := usecase.NewSearchUsecase(embedder, store, scorer, newFakeCache(), cfg, testLogger())

	out, err := u.Execute(context.Background(), usecase.SearchInput{
		Query: "budget plan", NResults: 3, RerankEnabled: true,
	})
	require.NoError(t, err)
	assert.False(t, out.Reranked)
	require.Len(t, out.Results, 3)
	assert.Equal(t, "candidate-1", out.Results[0].ID, "similarity-only order in degraded mode")
}

func TestSearchUsecase_ScoreCountMismatchIsRerankFailure(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	store := new(MockVectorStore)
	scorer := new(MockRelevanceScorer)

	embedder.On("Embed", mock.Anything, "budget plan").Return([]float32{0.1}, nil)
	store.On("Query", mock.Anything, mock.Anything, mock.Anything, "").Return(sixCandidates(), nil)
	scorer.On("ScoreBatch", mock.Anything, "budget plan", mock.Anything).
		Return([]float64{0.1, 0.2}, nil)

	u := usecase.NewSearchUsecase(embedder, store, scorer, newFakeCache(),
		usecase.DefaultPipelineConfig(), testLogger())

	_, err := u.Execute(context.Background(), usecase.SearchInput{
		Query: "budget plan", NResults: 3, RerankEnabled: true,
	})
	assert.ErrorIs(t, err, domain.ErrRerankFailure)
}

func TestSearchUsecase_EmbedTimeoutIsStageTagged(t *testing.T) {
	embedder := new(MockEmbeddingProvider)
	embedder.On("Embed", mock.Anything, "budget plan").Return(nil, context.DeadlineExceeded).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		})

	cfg := usecase.DefaultPipelineConfig()
	cfg.EmbedTimeout = 10 * time.Millisecond
	u := usecase.NewSearchUsecase(embedder, new(MockVectorStore), new(MockRelevanceScorer),
		newFakeCache(), cfg, testLogger())

	_, err := u.Execute(context.Background(), usecase.SearchInput{Query: "budget plan", NResults: 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStageTimeout)

	stage, ok := domain.FailingStage(err)
	require.True(t, ok)
	assert.Equal(t, domain.StageEmbed, stage)
}
