package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FetchResult captures how the query cache satisfied a fetch.
type FetchResult string

const (
	// FetchHit indicates fresh cached data was returned without a producer call.
	FetchHit FetchResult = "hit"
	// FetchMiss indicates the producer ran for this caller.
	FetchMiss FetchResult = "miss"
	// FetchShared indicates the caller joined a request already in flight.
	FetchShared FetchResult = "shared"
	// FetchSnapshotHit indicates the snapshot store satisfied the fetch.
	FetchSnapshotHit FetchResult = "snapshot_hit"
	// FetchError indicates the producer failed.
	FetchError FetchResult = "error"
	// FetchCanceled indicates the caller or the call was cancelled.
	FetchCanceled FetchResult = "canceled"
)

// Outcome labels gateway requests and mutations.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeError    Outcome = "error"
	OutcomeCanceled Outcome = "canceled"
)

// Recorder publishes Prometheus metrics for gateway, cache, and mutation activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	gatewayRequests *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec

	cacheFetches       *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec

	mutations *prometheus.CounterVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	gatewayRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventdesk",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Requests issued to the events backend.",
	}, []string{"operation", "status_code", "outcome"})

	gatewayLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eventdesk",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for events backend requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"operation", "outcome"})

	cacheFetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventdesk",
		Subsystem: "querycache",
		Name:      "fetches_total",
		Help:      "Query cache fetches by key category and how they were satisfied.",
	}, []string{"category", "result"})

	cacheInvalidations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventdesk",
		Subsystem: "querycache",
		Name:      "invalidations_total",
		Help:      "Query cache entries marked stale by invalidation.",
	}, []string{"category", "refetch"})

	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventdesk",
		Subsystem: "mutation",
		Name:      "total",
		Help:      "Settled mutations by name and outcome.",
	}, []string{"mutation", "outcome"})

	reg.MustRegister(gatewayRequests, gatewayLatency, cacheFetches, cacheInvalidations, mutations)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:           reg,
		handler:            handler,
		gatewayRequests:    gatewayRequests,
		gatewayLatency:     gatewayLatency,
		cacheFetches:       cacheFetches,
		cacheInvalidations: cacheInvalidations,
		mutations:          mutations,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveGatewayRequest records one backend request. statusCode is zero when
// no response arrived.
func (r *Recorder) ObserveGatewayRequest(operation string, statusCode int, outcome Outcome, duration time.Duration) {
	if r == nil {
		return
	}
	opLabel := normalizeLabel(operation)
	statusLabel := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		statusLabel = "none"
	}
	outcomeLabel := normalizeLabel(string(outcome))
	r.gatewayRequests.WithLabelValues(opLabel, statusLabel, outcomeLabel).Inc()
	r.gatewayLatency.WithLabelValues(opLabel, outcomeLabel).Observe(duration.Seconds())
}

// ObserveFetch records how a query cache fetch was satisfied.
func (r *Recorder) ObserveFetch(category string, result FetchResult) {
	if r == nil {
		return
	}
	resultLabel := string(result)
	if resultLabel == "" {
		resultLabel = string(FetchMiss)
	}
	r.cacheFetches.WithLabelValues(normalizeLabel(category), resultLabel).Inc()
}

// ObserveInvalidation records entries marked stale for a category.
func (r *Recorder) ObserveInvalidation(category, refetch string, entries int) {
	if r == nil || entries <= 0 {
		return
	}
	r.cacheInvalidations.WithLabelValues(normalizeLabel(category), normalizeLabel(refetch)).Add(float64(entries))
}

// ObserveMutation records a settled mutation.
func (r *Recorder) ObserveMutation(name string, outcome Outcome) {
	if r == nil {
		return
	}
	r.mutations.WithLabelValues(normalizeLabel(name), normalizeLabel(string(outcome))).Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
