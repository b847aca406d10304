package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"retrieval-pipeline/internal/domain"
	"retrieval-pipeline/internal/infra/metrics"
	"retrieval-pipeline/internal/usecase/retrieval"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// SearchInput defines one retrieval request.
type SearchInput struct {
	Query         string
	NResults      int
	Keyword       string
	RerankEnabled bool
	// OverFetch overrides the configured candidate pool size when positive.
	// It is still clamped to [NResults, MaxOverFetch].
	OverFetch int
}

// SearchOutput carries the ranked results of one retrieval call.
type SearchOutput struct {
	RetrievalID string
	Results     []domain.RankedCandidate
	Reranked    bool
}

// SearchUsecase runs the multi-stage retrieval pipeline: cache lookup,
// embed on miss, over-fetched candidate search, optional rerank, fusion,
// truncation.
type SearchUsecase interface {
	Execute(ctx context.Context, input SearchInput) (*SearchOutput, error)
}

type searchUsecase struct {
	embedder domain.EmbeddingProvider
	store    domain.VectorStore
	scorer   domain.RelevanceScorer
	cache    domain.EmbeddingCache
	cfg      PipelineConfig
	modelSem *semaphore.Weighted
	logger   *slog.Logger
}

// NewSearchUsecase creates a new SearchUsecase.
func NewSearchUsecase(
	embedder domain.EmbeddingProvider,
	store domain.VectorStore,
	scorer domain.RelevanceScorer,
	cache domain.EmbeddingCache,
	cfg PipelineConfig,
	logger *slog.Logger,
) SearchUsecase {
	var sem *semaphore.Weighted
	if cfg.MaxConcurrentModelCalls > 0 {
		sem = semaphore.NewWeighted(cfg.MaxConcurrentModelCalls)
	}
	return &searchUsecase{
		embedder: embedder,
		store:    store,
		scorer:   scorer,
		cache:    cache,
		cfg:      cfg,
		modelSem: sem,
		logger:   logger,
	}
}

func (u *searchUsecase) Execute(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidArgument)
	}
	if input.NResults <= 0 {
		return nil, fmt.Errorf("%w: n_results must be positive, got %d", domain.ErrInvalidArgument, input.NResults)
	}

	retrievalID := uuid.New().String()
	start := time.Now()

	out, err := u.run(ctx, retrievalID, query, input)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("failure").Inc()
		stage, _ := domain.FailingStage(err)
		u.logger.Error("search_failed",
			slog.String("retrieval_id", retrievalID),
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
		return nil, err
	}

	metrics.SearchesTotal.WithLabelValues("success").Inc()
	u.logger.Info("search_completed",
		slog.String("retrieval_id", retrievalID),
		slog.Int("result_count", len(out.Results)),
		slog.Bool("reranked", out.Reranked),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return out, nil
}

func (u *searchUsecase) run(ctx context.Context, retrievalID, query string, input SearchInput) (*SearchOutput, error) {
	embedding, hit := u.cache.Get(ctx, query)
	if hit {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
		var err error
		embedding, err = u.embed(ctx, query)
		if err != nil {
			return nil, err
		}
		// A failed Put is the cache's problem, never the caller's.
		u.cache.Put(ctx, query, embedding)
	}

	fetchLimit := u.fetchLimit(input)
	candidates, err := u.fetch(ctx, embedding, fetchLimit, input.Keyword)
	if err != nil {
		return nil, err
	}

	ranked := make([]domain.RankedCandidate, len(candidates))
	for i, c := range candidates {
		ranked[i] = domain.RankedCandidate{Candidate: c, Fused: c.Similarity}
	}

	reranked := false
	if input.RerankEnabled && len(candidates) > input.NResults {
		scores, err := u.rerank(ctx, query, candidates)
		switch {
		case err == nil:
			for i := range ranked {
				ranked[i].Relevance = scores[i]
				ranked[i].Reranked = true
				ranked[i].Fused = retrieval.Fuse(ranked[i].Similarity, scores[i], u.cfg.Weights)
			}
			reranked = true
		case u.cfg.FallbackOnRerankError:
			u.logger.Warn("rerank_failed_using_similarity_order",
				slog.String("retrieval_id", retrievalID),
				slog.String("error", err.Error()))
		default:
			return nil, err
		}
	} else {
		metrics.RerankSkippedTotal.Inc()
	}

	retrieval.Rank(ranked)
	if len(ranked) > input.NResults {
		ranked = ranked[:input.NResults]
	}

	return &SearchOutput{RetrievalID: retrievalID, Results: ranked, Reranked: reranked}, nil
}

// fetchLimit sizes the candidate pool: the caller's override or the
// configured over-fetch factor, clamped to [NResults, MaxOverFetch].
func (u *searchUsecase) fetchLimit(input SearchInput) int {
	limit := input.NResults * u.cfg.OverFetchFactor
	if input.OverFetch > 0 {
		limit = input.OverFetch
	}
	if limit > u.cfg.MaxOverFetch {
		limit = u.cfg.MaxOverFetch
	}
	if limit < input.NResults {
		limit = input.NResults
	}
	return limit
}

func (u *searchUsecase) embed(ctx context.Context, query string) ([]float32, error) {
	if err := u.acquireModel(ctx); err != nil {
		return nil, domain.NewStageError(domain.StageEmbed, domain.ErrEmbeddingFailure, err)
	}
	defer u.releaseModel()

	ctx, cancel := context.WithTimeout(ctx, u.cfg.EmbedTimeout)
	defer cancel()

	start := time.Now()
	embedding, err := u.embedder.Embed(ctx, query)
	metrics.StageDuration.WithLabelValues(string(domain.StageEmbed)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, domain.NewStageError(domain.StageEmbed, domain.ErrEmbeddingFailure, err)
	}
	if len(embedding) == 0 {
		return nil, domain.NewStageError(domain.StageEmbed, domain.ErrEmbeddingFailure,
			fmt.Errorf("provider returned an empty embedding"))
	}
	return embedding, nil
}

func (u *searchUsecase) fetch(ctx context.Context, embedding []float32, limit int, keyword string) ([]domain.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	candidates, err := u.store.Query(ctx, embedding, limit, keyword)
	metrics.StageDuration.WithLabelValues(string(domain.StageFetch)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, domain.NewStageError(domain.StageFetch, domain.ErrRetrievalFailure, err)
	}
	return candidates, nil
}

// rerank scores the whole candidate pool in one batched call. The batch is
// atomic for timeout purposes: a slow batch fails the call rather than
// returning partial scores.
func (u *searchUsecase) rerank(ctx context.Context, query string, candidates []domain.Candidate) ([]float64, error) {
	if err := u.acquireModel(ctx); err != nil {
		return nil, domain.NewStageError(domain.StageRerank, domain.ErrRerankFailure, err)
	}
	defer u.releaseModel()

	ctx, cancel := context.WithTimeout(ctx, u.cfg.RerankTimeout)
	defer cancel()

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content
	}

	start := time.Now()
	scores, err := u.scorer.ScoreBatch(ctx, query, texts)
	metrics.StageDuration.WithLabelValues(string(domain.StageRerank)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, domain.NewStageError(domain.StageRerank, domain.ErrRerankFailure, err)
	}
	if len(scores) != len(candidates) {
		return nil, domain.NewStageError(domain.StageRerank, domain.ErrRerankFailure,
			fmt.Errorf("expected %d scores, got %d", len(candidates), len(scores)))
	}
	return scores, nil
}

func (u *searchUsecase) acquireModel(ctx context.Context) error {
	if u.modelSem == nil {
		return nil
	}
	return u.modelSem.Acquire(ctx, 1)
}

func (u *searchUsecase) releaseModel() {
	if u.modelSem != nil {
		u.modelSem.Release(1)
	}
}
