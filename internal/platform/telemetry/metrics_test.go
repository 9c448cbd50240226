package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveLifecycle_CountsConflicts(t *testing.T) {
	c := NewCollector()

	c.ObserveLifecycle("initiate_review", "created")
	c.ObserveLifecycle("initiate_review", "already_exists")
	c.ObserveLifecycle("initiate_review", "already_exists")

	if got := testutil.ToFloat64(c.LifecycleOps.WithLabelValues("initiate_review", "already_exists")); got != 2 {
		t.Errorf("expected 2 already_exists, got %v", got)
	}
	if got := testutil.ToFloat64(c.ReviewConflicts); got != 2 {
		t.Errorf("expected 2 conflicts, got %v", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveLifecycle("start", "created")
	c.ObserveGrade(true)
	c.ObserveEvent("consultation.started", errors.New("x"))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	a.ObserveGrade(true)
	if got := testutil.ToFloat64(b.GradesUpserted.WithLabelValues("created")); got != 0 {
		t.Errorf("expected separate registries, got %v", got)
	}
}

func TestHandler_Exposition(t *testing.T) {
	c := NewCollector()
	c.ObserveEvent("consultation.completed", nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "clinic_events_published_total") {
		t.Error("expected events metric in exposition")
	}
}

func TestInitTracer_Disabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), TracingConfig{ServiceName: "clinic-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	if span.SpanContext().IsSampled() {
		t.Error("expected disabled tracer to never sample")
	}
	span.End()
}
