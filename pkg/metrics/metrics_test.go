package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"jigsaw-map/pkg/panel"
)

func TestObserverUpdatesGauges(t *testing.T) {
	t.Parallel()
	m := New()

	m.DataPass("p1", panel.Stats{Samples: 7, Cells: 2, Regions: 1})
	m.DataPass("p1", panel.Stats{Samples: 3, Cells: 1, Regions: 0})
	m.HoverLookup("p1", true)
	m.HoverLookup("p1", false)
	m.HoverLookup("p1", false)

	if got := testutil.ToFloat64(m.dataPasses.WithLabelValues("p1")); got != 2 {
		t.Errorf("passes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.samples.WithLabelValues("p1")); got != 3 {
		t.Errorf("samples = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.hoverLookups.WithLabelValues("p1", "false")); got != 2 {
		t.Errorf("misses = %v, want 2", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.DataPass("p", panel.Stats{})
	m.HoverLookup("p", true)
	m.CacheHit()
	m.IngestMessage("mqtt", "ok")
	h := m.WrapHandler("x", http.NotFoundHandler())
	if h == nil {
		t.Fatal("nil handler")
	}
}

// TestHandlerExposesRoutes checks wrapped routes show up on the scrape page.
func TestHandlerExposesRoutes(t *testing.T) {
	t.Parallel()
	m := New()

	h := m.WrapHandler("/api/panels", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/panels", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `http_requests_total{route="/api/panels",status="418"} 1`) {
		t.Fatalf("route counter missing:\n%s", body)
	}
}
