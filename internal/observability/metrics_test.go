package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMiddlewareRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}

	router := mux.NewRouter()
	router.Use(collector.Middleware)
	router.HandleFunc("/api/v1/outages/{link}", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/outages/LEO_SATCOM", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/api/v1/outages/{link}", "GET", "200")); got != 1 {
		t.Fatalf("api_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "api_request_duration_seconds", map[string]string{
		"route":  "/api/v1/outages/{link}",
		"method": "GET",
	}); count != 1 {
		t.Fatalf("api_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestMiddlewareRecordsErrorStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}

	router := mux.NewRouter()
	router.Use(collector.Middleware)
	router.HandleFunc("/api/v1/dataset", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusUnprocessableEntity)
	}).Methods(http.MethodPost)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dataset", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/api/v1/dataset", "POST", "422")); got != 1 {
		t.Fatalf("api_requests_total error label = %v, want 1", got)
	}
}

func TestObserveLoadDrivesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}

	collector.ObserveLoad(120, 3, 14, 250*time.Millisecond)
	collector.ObserveLoadFailure()
	collector.ObserveOutageScan(2 * time.Millisecond)
	collector.SetMissionCounts(120, 4, 2)

	if got := testutil.ToFloat64(collector.RowsAccepted); got != 120 {
		t.Fatalf("telemetry_rows_accepted_total = %v, want 120", got)
	}
	if got := testutil.ToFloat64(collector.RowsRejected); got != 3 {
		t.Fatalf("telemetry_rows_rejected_total = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.RedactedCells); got != 14 {
		t.Fatalf("telemetry_redacted_cells_total = %v, want 14", got)
	}
	if got := testutil.ToFloat64(collector.LoadFailures); got != 1 {
		t.Fatalf("telemetry_load_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.MissionLinks); got != 2 {
		t.Fatalf("mission_links = %v, want 2", got)
	}
	if count := histogramSampleCount(t, reg, "telemetry_load_duration_seconds", nil); count != 1 {
		t.Fatalf("telemetry_load_duration_seconds sample_count = %d, want 1", count)
	}
	if count := histogramSampleCount(t, reg, "outage_scan_duration_seconds", nil); count != 1 {
		t.Fatalf("outage_scan_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestMetricsHandlerExposesMissionGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}
	collector.SetMissionCounts(42, 4, 2)
	collector.HTTPRequests.WithLabelValues("/healthz", "GET", "200").Inc()
	collector.HTTPDurations.WithLabelValues("/healthz", "GET").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"api_requests_total",
		"api_request_duration_seconds",
		"mission_rows",
		"mission_subsystems",
		"mission_links",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestPlaybackCollectorClampsProgress(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewPlaybackCollector(reg)
	if err != nil {
		t.Fatalf("NewPlaybackCollector: %v", err)
	}

	collector.IncTick()
	collector.IncTick()
	collector.IncSeek()
	collector.SetSpeed(25)
	collector.SetProgress(1.7)

	if got := testutil.ToFloat64(collector.TicksTotal); got != 2 {
		t.Fatalf("playback_ticks_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.SeeksTotal); got != 1 {
		t.Fatalf("playback_seeks_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SpeedMultiplier); got != 25 {
		t.Fatalf("playback_speed_multiplier = %v, want 25", got)
	}
	if got := testutil.ToFloat64(collector.MissionProgress); got != 1 {
		t.Fatalf("playback_mission_progress_ratio = %v, want clamp to 1", got)
	}

	collector.SetProgress(-0.3)
	if got := testutil.ToFloat64(collector.MissionProgress); got != 0 {
		t.Fatalf("playback_mission_progress_ratio = %v, want clamp to 0", got)
	}
}

// Registering against an already-populated registry reuses the existing
// collectors instead of failing.
func TestNewAPICollectorIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}
	first.DatasetsLoaded.Inc()

	second, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector again: %v", err)
	}
	if got := testutil.ToFloat64(second.DatasetsLoaded); got != 1 {
		t.Fatalf("reused counter = %v, want 1", got)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
