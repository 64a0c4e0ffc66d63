package metrics

import (
	"math"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestRecorderObserveGatewayRequest(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveGatewayRequest("get_event", 404, OutcomeError, 250*time.Millisecond)
	rec.ObserveGatewayRequest("list_events", 0, OutcomeCanceled, time.Millisecond)

	families := gather(t, rec, "eventdesk_gateway_requests_total", "eventdesk_gateway_request_duration_seconds")

	counter := findMetric(t, families["eventdesk_gateway_requests_total"], map[string]string{
		"operation":   "get_event",
		"status_code": "404",
		"outcome":     "error",
	})
	if got := counter.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}
	findMetric(t, families["eventdesk_gateway_requests_total"], map[string]string{
		"operation":   "list_events",
		"status_code": "none",
		"outcome":     "canceled",
	})

	histMetric := findMetric(t, families["eventdesk_gateway_request_duration_seconds"], map[string]string{
		"operation": "get_event",
		"outcome":   "error",
	})
	hist := histMetric.GetHistogram()
	if hist == nil {
		t.Fatalf("expected histogram metric for gateway latency")
	}
	if hist.GetSampleCount() != 1 {
		t.Fatalf("expected histogram count 1, got %d", hist.GetSampleCount())
	}
	want := 0.25
	if diff := math.Abs(hist.GetSampleSum() - want); diff > 0.001 {
		t.Fatalf("expected histogram sum near %v, got %v", want, hist.GetSampleSum())
	}
}

func TestRecorderObserveCacheActivity(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveFetch("events", FetchHit)
	rec.ObserveFetch("events", FetchHit)
	rec.ObserveFetch("events-images", "")
	rec.ObserveInvalidation("events", "none", 3)
	rec.ObserveInvalidation("events", "active", 0)

	families := gather(t, rec, "eventdesk_querycache_fetches_total", "eventdesk_querycache_invalidations_total")

	hits := findMetric(t, families["eventdesk_querycache_fetches_total"], map[string]string{
		"category": "events",
		"result":   string(FetchHit),
	})
	if got := hits.GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected hit counter 2, got %v", got)
	}
	findMetric(t, families["eventdesk_querycache_fetches_total"], map[string]string{
		"category": "events-images",
		"result":   string(FetchMiss),
	})

	invalidated := findMetric(t, families["eventdesk_querycache_invalidations_total"], map[string]string{
		"category": "events",
		"refetch":  "none",
	})
	if got := invalidated.GetCounter().GetValue(); got != 3 {
		t.Fatalf("expected invalidation counter 3, got %v", got)
	}
	for _, metric := range families["eventdesk_querycache_invalidations_total"] {
		if matchLabels(metric, map[string]string{"refetch": "active"}) {
			t.Fatalf("zero-entry invalidation should not be recorded")
		}
	}
}

func TestRecorderObserveMutation(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveMutation("create_event", OutcomeSuccess)
	rec.ObserveMutation(" ", OutcomeError)

	families := gather(t, rec, "eventdesk_mutation_total")
	findMetric(t, families["eventdesk_mutation_total"], map[string]string{
		"mutation": "create_event",
		"outcome":  "success",
	})
	findMetric(t, families["eventdesk_mutation_total"], map[string]string{
		"mutation": "unknown",
		"outcome":  "error",
	})
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.ObserveGatewayRequest("x", 200, OutcomeSuccess, time.Millisecond)
	rec.ObserveFetch("events", FetchHit)
	rec.ObserveInvalidation("events", "active", 1)
	rec.ObserveMutation("x", OutcomeSuccess)

	rr := httptest.NewRecorder()
	rec.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if rr.Code != 503 {
		t.Fatalf("expected 503 from nil recorder, got %d", rr.Code)
	}
}

func TestRecorderHandler(t *testing.T) {
	rec := NewRecorder(nil)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)

	rec.Handler().ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200 response, got %d", rr.Code)
	}
	if rr.Body.Len() == 0 {
		t.Fatalf("expected response body")
	}
}

func gather(t *testing.T, rec *Recorder, names ...string) map[string][]*dto.Metric {
	t.Helper()
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	families, err := rec.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	collected := make(map[string][]*dto.Metric, len(names))
	for _, mf := range families {
		if !wanted[mf.GetName()] {
			continue
		}
		collected[mf.GetName()] = append(collected[mf.GetName()], mf.GetMetric()...)
	}
	for _, name := range names {
		if len(collected[name]) == 0 {
			t.Fatalf("metric %q not collected", name)
		}
	}
	return collected
}

func findMetric(t *testing.T, metrics []*dto.Metric, labels map[string]string) *dto.Metric {
	t.Helper()
	for _, metric := range metrics {
		if matchLabels(metric, labels) {
			return metric
		}
	}
	t.Fatalf("metric with labels %v not found", labels)
	return nil
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	for key, expected := range labels {
		found := false
		for _, label := range metric.GetLabel() {
			if label.GetName() == key && label.GetValue() == expected {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
