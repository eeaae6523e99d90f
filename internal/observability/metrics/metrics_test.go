package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Macrina/Listify-Agent-sub000/internal/core/domain"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/v1/lists":                  "/v1/lists",
		"/v1/lists/12":               "/v1/lists/{id}",
		"/v1/lists/12/export":        "/v1/lists/{id}/export",
		"/v1/lists/12/items/7":       "/v1/lists/{id}/items/{item_id}",
		"/v1/lists/12/items/7/extra": "/v1/lists/other",
		"/v1/extract/text":           "/v1/extract/text",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMiddlewareCountsRequests(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/lists/3", nil))
	}

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "/v1/lists/{id}", "418"))
	if got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "listify_http_requests_total") {
		t.Fatalf("metrics output missing request counter")
	}
}

func TestPipelineMetricsObservesStages(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	p := NewPipelineMetrics("api", m.Registry())
	ctx := context.Background()

	p.StageStarted(ctx, "run", domain.StageAcquiring)
	if got := testutil.ToFloat64(p.stagesInFlight.WithLabelValues("api", "acquiring")); got != 1 {
		t.Fatalf("expected 1 in flight, got %v", got)
	}
	p.StageFinished(ctx, "run", domain.StageAcquiring, 20*time.Millisecond, errors.New("boom"))
	if got := testutil.ToFloat64(p.stagesInFlight.WithLabelValues("api", "acquiring")); got != 0 {
		t.Fatalf("expected 0 in flight, got %v", got)
	}
	if got := testutil.ToFloat64(p.stageTotal.WithLabelValues("api", "acquiring", "error")); got != 1 {
		t.Fatalf("expected one failed stage, got %v", got)
	}

	p.PersistAttempt(ctx, "store.insert", 1, nil)
	p.PersistAttempt(ctx, "store.insert", 2, errors.New("locked"))
	if got := testutil.ToFloat64(p.persistAttempts.WithLabelValues("api", "store.insert", "success")); got != 1 {
		t.Fatalf("expected one successful attempt, got %v", got)
	}

	m.RecordExtraction("api", "text", 0, nil)
	if got := testutil.ToFloat64(m.extractTotal.WithLabelValues("api", "text", "empty")); got != 1 {
		t.Fatalf("expected empty extraction counted, got %v", got)
	}
}
