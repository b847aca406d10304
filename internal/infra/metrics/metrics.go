package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval pipeline Prometheus metrics.
var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Name:      "searches_total",
			Help:      "Total number of search calls by terminal status",
		},
		[]string{"status"}, // "success" / "failure"
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrieval",
			Name:      "stage_duration_seconds",
			Help:      "Blocking stage duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	RerankSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Name:      "rerank_skipped_total",
			Help:      "Searches that short-circuited past the reranker",
		},
	)
)

var registered bool

// Register registers the pipeline metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(RerankSkippedTotal)
	registered = true
}
