package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Port string

	// Backend selection.
	VectorBackend   string // "pgvector" or "qdrant"
	EmbedderBackend string // "ollama" or "openai"
	CacheBackend    string // "memory" or "redis"

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	QdrantHost       string
	QdrantPort       int
	QdrantCollection string

	OllamaURL       string
	EmbeddingModel  string
	GenerationModel string
	OpenAIAPIKey    string
	OpenAIModel     string
	ModelRateLimit  float64

	RerankerURL   string
	RerankerModel string

	RedisAddr     string
	RedisPassword string

	CacheSize          int
	CacheTTL           time.Duration
	CacheSweepInterval time.Duration

	OverFetchFactor         int
	MaxOverFetch            int
	SimilarityWeight        float64
	RelevanceWeight         float64
	FallbackOnRerankError   bool
	EmbedTimeout            time.Duration
	FetchTimeout            time.Duration
	RerankTimeout           time.Duration
	MaxConcurrentModelCalls int
}

func Load() *Config {
	return &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "9020"),

		VectorBackend:   getEnv("VECTOR_BACKEND", "pgvector"),
		EmbedderBackend: getEnv("EMBEDDER_BACKEND", "ollama"),
		CacheBackend:    getEnv("CACHE_BACKEND", "memory"),

		DBHost:     getEnv("DB_HOST", "retrieval-db"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "retrieval_user"),
		DBPassword: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "retrieval_password"),
		DBName:     getEnv("DB_NAME", "retrieval_db"),

		QdrantHost:       getEnv("QDRANT_HOST", "qdrant"),
		QdrantPort:       getEnvInt("QDRANT_PORT", 6334),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "passages"),

		OllamaURL:       getEnv("OLLAMA_URL", "http://ollama:11434"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "embeddinggemma"),
		GenerationModel: getEnv("GENERATION_MODEL", "gemma3:4b"),
		OpenAIAPIKey:    getSecret("OPENAI_API_KEY", "OPENAI_API_KEY_FILE", ""),
		OpenAIModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		ModelRateLimit:  getEnvFloat("MODEL_RATE_LIMIT_RPS", 0),

		RerankerURL:   getEnv("RERANKER_URL", "http://reranker:9030"),
		RerankerModel: getEnv("RERANKER_MODEL", "bge-reranker-v2-m3"),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getSecret("REDIS_PASSWORD", "REDIS_PASSWORD_FILE", ""),

		CacheSize:          getEnvInt("EMBED_CACHE_SIZE", 4096),
		CacheTTL:           getEnvDuration("EMBED_CACHE_TTL", 24*time.Hour),
		CacheSweepInterval: getEnvDuration("EMBED_CACHE_SWEEP_INTERVAL", 10*time.Minute),

		OverFetchFactor:         getEnvInt("OVER_FETCH_FACTOR", 4),
		MaxOverFetch:            getEnvInt("MAX_OVER_FETCH", 20),
		SimilarityWeight:        getEnvFloat("FUSION_SIMILARITY_WEIGHT", 0.3),
		RelevanceWeight:         getEnvFloat("FUSION_RELEVANCE_WEIGHT", 0.7),
		FallbackOnRerankError:   getEnvBool("FALLBACK_ON_RERANK_ERROR", false),
		EmbedTimeout:            getEnvDuration("EMBED_TIMEOUT", 10*time.Second),
		FetchTimeout:            getEnvDuration("FETCH_TIMEOUT", 5*time.Second),
		RerankTimeout:           getEnvDuration("RERANK_TIMEOUT", 30*time.Second),
		MaxConcurrentModelCalls: getEnvInt("MAX_CONCURRENT_MODEL_CALLS", 8),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		if content, err := os.ReadFile(filePath); err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
