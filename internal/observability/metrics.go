package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	apiRequestsTotal     *prometheus.CounterVec
	apiLatencySeconds    *prometheus.HistogramVec
	apiErrorsTotal       *prometheus.CounterVec
	accessDecisionsTotal *prometheus.CounterVec
	auditWritesTotal     *prometheus.CounterVec
	ingestedRecordsTotal *prometheus.CounterVec
	aggregateCacheTotal  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API and its services.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tutor_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tutor_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tutor_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		accessDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tutor_access_decisions_total",
			Help: "Access policy decisions by resource and outcome.",
		}, []string{"resource", "outcome"})

		auditWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tutor_audit_writes_total",
			Help: "Audit log writes by action type and result.",
		}, []string{"action_type", "result"})

		ingestedRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tutor_ingested_records_total",
			Help: "Student records persisted by ingest batches.",
		}, []string{"source"})

		aggregateCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tutor_aggregate_cache_total",
			Help: "Aggregate cache lookups by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			accessDecisionsTotal,
			auditWritesTotal,
			ingestedRecordsTotal,
			aggregateCacheTotal,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// AccessDecisions counts grants and denials per resource.
func AccessDecisions() *prometheus.CounterVec {
	RegisterMetrics()
	return accessDecisionsTotal
}

// AuditWrites counts audit entries written or failed.
func AuditWrites() *prometheus.CounterVec {
	RegisterMetrics()
	return auditWritesTotal
}

// IngestedRecords counts records committed by ingest.
func IngestedRecords() *prometheus.CounterVec {
	RegisterMetrics()
	return ingestedRecordsTotal
}

// AggregateCache counts aggregate cache hits and misses.
func AggregateCache() *prometheus.CounterVec {
	RegisterMetrics()
	return aggregateCacheTotal
}
