package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"retrieval-pipeline/internal/adapter/embcache"
	"retrieval-pipeline/internal/adapter/httpapi"
	"retrieval-pipeline/internal/adapter/inference"
	"retrieval-pipeline/internal/adapter/repository"
	"retrieval-pipeline/internal/domain"
	"retrieval-pipeline/internal/infra"
	"retrieval-pipeline/internal/infra/config"
	"retrieval-pipeline/internal/infra/httpclient"
	"retrieval-pipeline/internal/infra/logger"
	"retrieval-pipeline/internal/infra/metrics"
	"retrieval-pipeline/internal/usecase"
	"retrieval-pipeline/internal/worker"
)

func main() {
	// 1. Load Config
	cfg := config.Load()

	// 2. Initialize Logger
	log := logger.New()
	slog.SetDefault(log)

	// 3. Initialize Metrics
	metrics.Register()

	// 4. Initialize Vector Store
	var (
		store   domain.VectorStore
		readyFn func(ctx context.Context) error
	)
	switch cfg.VectorBackend {
	case "qdrant":
		qdrantStore, err := repository.NewQdrantStore(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection)
		if err != nil {
			log.Error("failed to connect to qdrant", "error", err)
			os.Exit(1)
		}
		defer qdrantStore.Close()
		store = qdrantStore
		readyFn = func(ctx context.Context) error { return nil }
	default:
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
		dbPool, err := infra.NewPostgresDB(context.Background(), dsn)
		if err != nil {
			log.Error("failed to connect to db", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()
		store = repository.NewPgvectorStore(dbPool)
		readyFn = dbPool.Ping
	}

	// 5. Initialize Embedding Cache
	var (
		cache   domain.EmbeddingCache
		sweeper *worker.CacheSweeper
	)
	switch cfg.CacheBackend {
	case "redis":
		redisCache, err := embcache.NewRedisCache(embcache.RedisConfig{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			TTL:      cfg.CacheTTL,
		}, log)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisCache.Close()
		cache = redisCache
	default:
		memCache, err := embcache.NewMemoryCache(cfg.CacheSize, cfg.CacheTTL)
		if err != nil {
			log.Error("failed to create embedding cache", "error", err)
			os.Exit(1)
		}
		cache = memCache
		// Redis expires entries server-side; the in-memory cache needs a
		// sweeper to reclaim entries nobody reads again.
		sweeper = worker.NewCacheSweeper(memCache, cfg.CacheSweepInterval, log)
	}

	// 6. Initialize Model Clients
	modelClient := httpclient.NewPooledClient(2 * time.Minute)

	var embedder domain.EmbeddingProvider
	switch cfg.EmbedderBackend {
	case "openai":
		embedder = inference.NewOpenAIEmbedder(inference.OpenAIEmbedderConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
		}, log)
	default:
		embedder = inference.NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbeddingModel, modelClient, cfg.ModelRateLimit, log)
	}

	scorer := inference.NewRerankerClient(cfg.RerankerURL, cfg.RerankerModel, modelClient, cfg.ModelRateLimit, log)
	generator := inference.NewOllamaGenerator(cfg.OllamaURL, cfg.GenerationModel, modelClient, log)

	// 7. Initialize Usecases
	pipelineCfg := usecase.PipelineConfig{
		OverFetchFactor:         cfg.OverFetchFactor,
		MaxOverFetch:            cfg.MaxOverFetch,
		Weights:                 domain.FusionWeights{Similarity: cfg.SimilarityWeight, Relevance: cfg.RelevanceWeight},
		FallbackOnRerankError:   cfg.FallbackOnRerankError,
		EmbedTimeout:            cfg.EmbedTimeout,
		FetchTimeout:            cfg.FetchTimeout,
		RerankTimeout:           cfg.RerankTimeout,
		MaxConcurrentModelCalls: int64(cfg.MaxConcurrentModelCalls),
	}
	if err := pipelineCfg.Validate(); err != nil {
		log.Error("invalid pipeline configuration", "error", err)
		os.Exit(1)
	}

	searchUsecase := usecase.NewSearchUsecase(embedder, store, scorer, cache, pipelineCfg, log)
	answerUsecase := usecase.NewAnswerUsecase(searchUsecase, generator, log)

	// 8. Start Cache Sweeper
	if sweeper != nil {
		sweeper.Start()
		defer sweeper.Stop()
	}

	// 9. Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// 10. Register Handlers
	handler := httpapi.NewHandler(searchUsecase, answerUsecase)
	httpapi.Register(e, handler)

	// 11. Health Checks & Metrics
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/readyz", func(c echo.Context) error {
		if err := readyFn(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "store down", "error": err.Error()})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// 12. Start Server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		log.Info("starting_server", "addr", addr, "vector_backend", cfg.VectorBackend, "cache_backend", cfg.CacheBackend)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	// 13. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
}
