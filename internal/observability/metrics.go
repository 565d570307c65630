package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APICollector bundles Prometheus metrics for the HTTP API surface and the
// dataset lifecycle, and provides helpers to wire them into HTTP handlers.
type APICollector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	DatasetsLoaded prometheus.Counter
	LoadFailures   prometheus.Counter
	RowsAccepted   prometheus.Counter
	RowsRejected   prometheus.Counter
	RedactedCells  prometheus.Counter
	LoadDuration   prometheus.Histogram

	OutageScans        prometheus.Counter
	OutageScanDuration prometheus.Histogram

	MissionRows       prometheus.Gauge
	MissionSubsystems prometheus.Gauge
	MissionLinks      prometheus.Gauge
}

// NewAPICollector registers analyzer Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewAPICollector(reg prometheus.Registerer) (*APICollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "Total number of handled API requests, labeled by route, method, and HTTP status code.",
	}, []string{"route", "method", "code"})
	requests, err := registerCounterVec(reg, requests, "api_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_request_duration_seconds",
		Help:    "API request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"route", "method"})
	durations, err = registerHistogramVec(reg, durations, "api_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	loaded, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_datasets_loaded_total",
		Help: "Cumulative number of datasets accepted and installed.",
	}), "telemetry_datasets_loaded_total")
	if err != nil {
		return nil, err
	}
	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_load_failures_total",
		Help: "Cumulative number of dataset loads aborted by fatal schema or I/O errors.",
	}), "telemetry_load_failures_total")
	if err != nil {
		return nil, err
	}
	accepted, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_rows_accepted_total",
		Help: "Cumulative number of telemetry rows accepted across all loads.",
	}), "telemetry_rows_accepted_total")
	if err != nil {
		return nil, err
	}
	rejected, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_rows_rejected_total",
		Help: "Cumulative number of telemetry rows rejected across all loads.",
	}), "telemetry_rows_rejected_total")
	if err != nil {
		return nil, err
	}
	redacted, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_redacted_cells_total",
		Help: "Cumulative number of redacted cells observed across all loads.",
	}), "telemetry_redacted_cells_total")
	if err != nil {
		return nil, err
	}
	loadDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "telemetry_load_duration_seconds",
		Help:    "Duration of full dataset validation passes.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}), "telemetry_load_duration_seconds")
	if err != nil {
		return nil, err
	}

	scans, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outage_scans_total",
		Help: "Cumulative number of outage interval computations.",
	}), "outage_scans_total")
	if err != nil {
		return nil, err
	}
	scanDuration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outage_scan_duration_seconds",
		Help:    "Duration of outage interval computations.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "outage_scan_duration_seconds")
	if err != nil {
		return nil, err
	}

	rows, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mission_rows",
		Help: "Number of accepted rows in the current mission.",
	}), "mission_rows")
	if err != nil {
		return nil, err
	}
	subsystems, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mission_subsystems",
		Help: "Number of detected subsystems in the current mission.",
	}), "mission_subsystems")
	if err != nil {
		return nil, err
	}
	links, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mission_links",
		Help: "Number of detected communication links in the current mission.",
	}), "mission_links")
	if err != nil {
		return nil, err
	}

	return &APICollector{
		gatherer:           gatherer,
		HTTPRequests:       requests,
		HTTPDurations:      durations,
		DatasetsLoaded:     loaded,
		LoadFailures:       failures,
		RowsAccepted:       accepted,
		RowsRejected:       rejected,
		RedactedCells:      redacted,
		LoadDuration:       loadDuration,
		OutageScans:        scans,
		OutageScanDuration: scanDuration,
		MissionRows:        rows,
		MissionSubsystems:  subsystems,
		MissionLinks:       links,
	}, nil
}

// Middleware records request counts and durations for HTTP handlers,
// labeled by mux route template rather than the raw path so that mission
// and link IDs do not explode the label space.
func (c *APICollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if c == nil {
			return
		}
		route := routeTemplate(r)
		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(route, r.Method, fmt.Sprintf("%d", rec.status)).Inc()
		}
		if c.HTTPDurations != nil {
			c.HTTPDurations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		}
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *APICollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveLoad records a successful validation pass.
func (c *APICollector) ObserveLoad(accepted, rejected, redacted int, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.DatasetsLoaded != nil {
		c.DatasetsLoaded.Inc()
	}
	if c.RowsAccepted != nil {
		c.RowsAccepted.Add(float64(accepted))
	}
	if c.RowsRejected != nil {
		c.RowsRejected.Add(float64(rejected))
	}
	if c.RedactedCells != nil {
		c.RedactedCells.Add(float64(redacted))
	}
	if c.LoadDuration != nil {
		c.LoadDuration.Observe(elapsed.Seconds())
	}
}

// ObserveLoadFailure records a fatally aborted load.
func (c *APICollector) ObserveLoadFailure() {
	if c == nil || c.LoadFailures == nil {
		return
	}
	c.LoadFailures.Inc()
}

// ObserveOutageScan records one outage computation.
func (c *APICollector) ObserveOutageScan(elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.OutageScans != nil {
		c.OutageScans.Inc()
	}
	if c.OutageScanDuration != nil {
		c.OutageScanDuration.Observe(elapsed.Seconds())
	}
}

// SetMissionCounts satisfies the session's MetricsRecorder interface so
// mission installs drive the gauge values directly.
func (c *APICollector) SetMissionCounts(rows, subsystems, links int) {
	if c == nil {
		return
	}
	if c.MissionRows != nil {
		c.MissionRows.Set(float64(rows))
	}
	if c.MissionSubsystems != nil {
		c.MissionSubsystems.Set(float64(subsystems))
	}
	if c.MissionLinks != nil {
		c.MissionLinks.Set(float64(links))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// routeTemplate resolves the mux route template for labeling. It tolerates
// requests served outside a mux router, returning "unknown".
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unknown"
	}
	if tpl, err := route.GetPathTemplate(); err == nil && tpl != "" {
		return tpl
	}
	return "unknown"
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
