package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BarAvidan1996/eilam-sub000/pkg/circuitbreaker"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eilam_rag_query_duration_seconds",
			Help:    "Pipeline duration in seconds by terminal state",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"terminal"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eilam_rag_query_total",
			Help: "Total questions answered by terminal state",
		},
		[]string{"terminal"},
	)

	StageTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eilam_rag_stage_transitions_total",
			Help: "Pipeline state transitions",
		},
		[]string{"from", "to"},
	)

	DocumentsFound = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eilam_rag_documents_found",
			Help:    "Documents above the similarity threshold per question",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	JudgeVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eilam_rag_judge_verdicts_total",
			Help: "Quality judge outcomes",
		},
		[]string{"verdict"},
	)

	WebSearchTriggered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eilam_rag_web_search_total",
			Help: "Web searches issued by outcome",
		},
		[]string{"outcome"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eilam_rag_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eilam_rag_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eilam_rag_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	CacheErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eilam_rag_cache_errors_total",
			Help: "Swallowed cache store errors",
		},
		[]string{"op"},
	)

	CachePruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eilam_rag_cache_pruned_total",
			Help: "Cached answers removed by age pruning",
		},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eilam_rag_documents_processed_total",
			Help: "Total documents ingested",
		},
	)

	UserFeedback = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eilam_rag_feedback_total",
			Help: "User feedback on answers",
		},
		[]string{"helpful"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eilam_circuit_breaker_state",
			Help: "Provider breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"breaker"},
	)

	CircuitBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eilam_circuit_breaker_trips_total",
			Help: "Times a provider breaker opened",
		},
		[]string{"breaker"},
	)

	CircuitBreakerRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eilam_circuit_breaker_rejections_total",
			Help: "Provider calls failed fast by a breaker",
		},
		[]string{"breaker", "state"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call twice.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			QueryDuration,
			QueryTotal,
			StageTransitions,
			DocumentsFound,
			JudgeVerdicts,
			WebSearchTriggered,
			LLMTokensUsed,
			CacheHits,
			CacheMisses,
			CacheErrors,
			CachePruned,
			DocumentsProcessed,
			UserFeedback,
			CircuitBreakerState,
			CircuitBreakerTrips,
			CircuitBreakerRejections,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

type breakerObserver struct{}

// BreakerObserver exports provider breaker transitions and fast failures.
func BreakerObserver() circuitbreaker.Observer {
	return breakerObserver{}
}

func (breakerObserver) StateChanged(name string, _, to circuitbreaker.State) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	if to == circuitbreaker.StateOpen {
		CircuitBreakerTrips.WithLabelValues(name).Inc()
	}
}

func (breakerObserver) Rejected(name string, state circuitbreaker.State) {
	CircuitBreakerRejections.WithLabelValues(name, state.String()).Inc()
}
