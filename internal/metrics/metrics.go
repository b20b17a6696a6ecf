package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Detection workflow metrics
	DetectionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cheatkey_detections_started_total",
			Help: "Total number of detection workflows started",
		},
	)

	DetectionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cheatkey_detections_completed_total",
			Help: "Total number of detection workflows completed",
		},
		[]string{"status", "action_type"},
	)

	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cheatkey_detection_duration_seconds",
			Help:    "Detection workflow execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	QualityScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cheatkey_detection_quality_score",
			Help:    "Overall quality score of completed detections",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)

	// Vector DB metrics
	VectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cheatkey_vector_search_total",
			Help: "Total number of vector searches",
		},
		[]string{"collection", "status"},
	)

	VectorSearchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cheatkey_vector_search_latency_seconds",
			Help:    "Vector search latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection"},
	)

	VectorUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cheatkey_vector_upsert_total",
			Help: "Total number of case index upserts",
		},
		[]string{"collection", "status"},
	)

	// Embedding metrics
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cheatkey_embedding_requests_total",
			Help: "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cheatkey_embedding_latency_seconds",
			Help:    "Embedding generation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	EmbeddingCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cheatkey_embedding_cache_hits_total",
			Help: "Total number of embedding cache hits",
		},
	)

	EmbeddingCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cheatkey_embedding_cache_misses_total",
			Help: "Total number of embedding cache misses",
		},
	)

	// LLM metrics
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cheatkey_llm_calls_total",
			Help: "Total number of LLM completion calls",
		},
		[]string{"model", "status"},
	)

	LLMCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cheatkey_llm_call_latency_seconds",
			Help:    "LLM completion latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	LLMCostUSD = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cheatkey_llm_cost_usd",
			Help:    "Estimated cost in USD per LLM call",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
	)

	// Budget metrics
	BudgetDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cheatkey_budget_denials_total",
			Help: "Total number of LLM calls denied by the cost tracker",
		},
		[]string{"reason"},
	)

	// History store metrics
	HistoryWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cheatkey_history_writes_total",
			Help: "Total number of detection history writes",
		},
		[]string{"status"},
	)
)

// RecordDetectionMetrics records metrics for a completed detection workflow
func RecordDetectionMetrics(status, actionType string, durationSeconds, qualityScore float64) {
	DetectionsCompleted.WithLabelValues(status, actionType).Inc()
	DetectionDuration.Observe(durationSeconds)
	if qualityScore > 0 {
		QualityScore.Observe(qualityScore)
	}
}

// RecordVectorSearchMetrics records vector search metrics
func RecordVectorSearchMetrics(collection, status string, durationSeconds float64) {
	VectorSearches.WithLabelValues(collection, status).Inc()
	if durationSeconds > 0 {
		VectorSearchLatency.WithLabelValues(collection).Observe(durationSeconds)
	}
}

// RecordEmbeddingMetrics records embedding metrics
func RecordEmbeddingMetrics(model, status string, durationSeconds float64) {
	EmbeddingRequests.WithLabelValues(model, status).Inc()
	if durationSeconds > 0 {
		EmbeddingLatency.WithLabelValues(model).Observe(durationSeconds)
	}
}

// RecordLLMMetrics records LLM call metrics
func RecordLLMMetrics(model, status string, durationSeconds, costUSD float64) {
	LLMCalls.WithLabelValues(model, status).Inc()
	if durationSeconds > 0 {
		LLMCallLatency.WithLabelValues(model).Observe(durationSeconds)
	}
	if costUSD > 0 {
		LLMCostUSD.Observe(costUSD)
	}
}
