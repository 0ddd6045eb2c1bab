package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

func TestStageChanged_CountsTransitions(t *testing.T) {
	m := New()
	ev := flowmodel.StageChangeEvent{TenantID: "acme", Action: flowmodel.ActionRecordVitals, To: flowmodel.StageWaitingDoctorAssignment}

	m.StageChanged(context.Background(), ev)
	m.StageChanged(context.Background(), ev)

	got := testutil.ToFloat64(m.Transitions.WithLabelValues("acme", "RECORD_VITALS", "WAITING_DOCTOR_ASSIGNMENT"))
	if got != 2 {
		t.Errorf("expected 2 transitions, got %v", got)
	}
}

func TestMiddleware_RecordsRouteAndStatus(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/visit-flows/:id", func(c echo.Context) error {
		if c.Param("id") == "missing" {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		return c.String(http.StatusOK, "ok")
	})

	for _, id := range []string{"v-1", "v-2", "missing"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/visit-flows/"+id, nil))
	}

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/v1/visit-flows/:id", "200")); got != 2 {
		t.Errorf("expected 2 ok requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/v1/visit-flows/:id", "404")); got != 1 {
		t.Errorf("expected 1 not found request, got %v", got)
	}
	if n := testutil.CollectAndCount(m.HTTPDuration); n != 1 {
		t.Errorf("expected one latency series, got %d", n)
	}
}

func TestGauge(t *testing.T) {
	m := New()
	m.Gauge("websocket", "clients", "Connected clients.", func() float64 { return 3 })

	rec := httptest.NewRecorder()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), rec)
	if err := m.Handler()(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "opdflow_websocket_clients 3") {
		t.Errorf("expected gauge in exposition, got:\n%s", rec.Body.String())
	}
}

func TestHandler_ExposesTransitions(t *testing.T) {
	m := New()
	m.StageChanged(context.Background(), flowmodel.StageChangeEvent{TenantID: "acme", Action: flowmodel.ActionStartVisit, To: flowmodel.StageWaitingVitals})

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), rec)
	if err := m.Handler()(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `opdflow_visit_transitions_total{action="START_VISIT",tenant="acme",to="WAITING_VITALS"} 1`) {
		t.Errorf("expected transition counter, got:\n%s", rec.Body.String())
	}
}
