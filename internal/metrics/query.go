package metrics

import "github.com/prometheus/client_golang/prometheus"

// Namespace prefixes every catalogq metric.
const Namespace = "catalogq"

// Query execution Prometheus metrics.
var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "queries_total",
			Help:      "Total number of queries by operation, entity kind and serving path",
		},
		[]string{"op", "kind", "served_by"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end query duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"op", "kind", "served_by"},
	)

	QueryErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "query_errors_total",
			Help:      "Total failed queries by error class",
		},
		[]string{"op", "kind", "class"}, // specification / unavailable / canceled
	)

	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "delegate_fallbacks_total",
			Help:      "Queries re-executed on the relational path after a delegate failure",
		},
		[]string{"kind"},
	)

	SlowQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "slow_queries_total",
			Help:      "Queries exceeding the slow query threshold",
		},
		[]string{"op", "kind", "fallback"},
	)

	DelegateRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "delegate_requests_total",
			Help:      "Delegate HTTP attempts by outcome",
		},
		[]string{"kind", "status"}, // ok / error / timeout / rate_limited / http_5xx ...
	)

	DelegateRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "delegate_request_duration_seconds",
			Help:      "Delegate call duration in seconds, retries included",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"kind"},
	)

	BackendQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "backend_query_duration_seconds",
			Help:      "Relational backend statement duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"stmt"}, // select / count / ids / lookup
	)

	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "result_cache_total",
			Help:      "Result cache lookups and failures",
		},
		[]string{"result"}, // hit / miss / error
	)
)

var queryMetricsRegistered bool

// RegisterQueryMetrics registers query, delegate and cache metrics. Must be called once from main.
func RegisterQueryMetrics() {
	if queryMetricsRegistered {
		return
	}
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryErrorsTotal)
	prometheus.MustRegister(FallbacksTotal)
	prometheus.MustRegister(SlowQueriesTotal)
	prometheus.MustRegister(DelegateRequestsTotal)
	prometheus.MustRegister(DelegateRequestDuration)
	prometheus.MustRegister(BackendQueryDuration)
	prometheus.MustRegister(CacheTotal)
	queryMetricsRegistered = true
}
