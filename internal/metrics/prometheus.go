package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pms_search_duration_seconds",
			Help:    "Search pipeline duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"lane"},
	)

	SearchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pms_search_total",
			Help: "Total number of search queries processed",
		},
		[]string{"lane", "status"},
	)

	ExtractionCoverage = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pms_extraction_coverage",
			Help:    "Regex coverage ratio per query",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1.0},
		},
	)

	AIEscalations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pms_ai_escalations_total",
			Help: "Queries escalated to AI extraction",
		},
		[]string{"reason"},
	)

	WaveRows = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pms_wave_rows",
			Help:    "Rows returned per search wave probe",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
		},
		[]string{"match_mode"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pms_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pms_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pms_documents_processed_total",
			Help: "Total documents ingested",
		},
	)

	WorkOrdersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pms_work_orders_created_total",
			Help: "Total work orders created via the API",
		},
	)

	IdempotencyReplays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pms_idempotency_replays_total",
			Help: "Requests answered from a stored idempotent response",
		},
	)

	IdempotencyConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pms_idempotency_conflicts_total",
			Help: "Idempotency keys reused with a different request body",
		},
	)

	OwnershipRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pms_ownership_rejections_total",
			Help: "By-ID accesses rejected as not found for the caller's yacht",
		},
	)
)

func Init() {
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchTotal)
	prometheus.MustRegister(ExtractionCoverage)
	prometheus.MustRegister(AIEscalations)
	prometheus.MustRegister(WaveRows)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(WorkOrdersCreated)
	prometheus.MustRegister(IdempotencyReplays)
	prometheus.MustRegister(IdempotencyConflicts)
	prometheus.MustRegister(OwnershipRejections)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
