package supervisor

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"predict-console/internal/storage"
)

// Metrics collects Prometheus metrics for the console and its proxy.
type Metrics struct {
	callsTotal     *prometheus.CounterVec
	callDuration   *prometheus.HistogramVec
	bytesTotal     *prometheus.CounterVec
	inFlightCalls  prometheus.Gauge
	backendHealthy prometheus.Gauge
	modelLoaded    prometheus.Gauge
	consoleActions *prometheus.CounterVec
	sessions       prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// NewMetrics returns the process-wide metrics collector.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = &Metrics{
			callsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "predict_console_backend_calls_total",
					Help: "Total number of calls forwarded to the prediction backend",
				},
				[]string{"route", "status"},
			),
			callDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "predict_console_backend_call_duration_seconds",
					Help:    "Backend call duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"route"},
			),
			bytesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "predict_console_backend_bytes_total",
					Help: "Bytes proxied to (in) and from (out) the backend",
				},
				[]string{"route", "direction"},
			),
			inFlightCalls: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "predict_console_backend_calls_in_flight",
					Help: "Number of backend calls currently in flight",
				},
			),
			backendHealthy: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "predict_console_backend_healthy",
					Help: "Backend health status (1 = healthy, 0 = unhealthy)",
				},
			),
			modelLoaded: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "predict_console_model_loaded",
					Help: "Whether the backend reports a loaded model (1 = loaded)",
				},
			),
			consoleActions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "predict_console_actions_total",
					Help: "Console actions by page variant, action and outcome",
				},
				[]string{"variant", "action", "outcome"},
			),
			sessions: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "predict_console_sessions",
					Help: "Number of live browser sessions",
				},
			),
		}
	})
	return metricsInst
}

// RecordCall records a completed backend call.
func (m *Metrics) RecordCall(route storage.Route, status storage.Status, duration time.Duration, bytesIn, bytesOut int64) {
	if m == nil {
		return
	}

	routeLabel := string(route)
	if routeLabel == "" {
		routeLabel = string(storage.RouteOther)
	}
	statusLabel := string(status)
	if statusLabel == "" {
		statusLabel = "unknown"
	}

	m.callsTotal.WithLabelValues(routeLabel, statusLabel).Inc()
	m.callDuration.WithLabelValues(routeLabel).Observe(duration.Seconds())
	if bytesIn > 0 {
		m.bytesTotal.WithLabelValues(routeLabel, "in").Add(float64(bytesIn))
	}
	if bytesOut > 0 {
		m.bytesTotal.WithLabelValues(routeLabel, "out").Add(float64(bytesOut))
	}
}

// RecordAction records the outcome of a console action such as predict.
func (m *Metrics) RecordAction(variant, action, outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.consoleActions.WithLabelValues(variant, action, outcome).Inc()
}

// UpdateInFlight updates the in-flight calls gauge.
func (m *Metrics) UpdateInFlight(count int) {
	if m == nil {
		return
	}
	m.inFlightCalls.Set(float64(count))
}

// UpdateSessions updates the live sessions gauge.
func (m *Metrics) UpdateSessions(count int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(count))
}

// UpdateBackendHealth updates the backend health gauge.
func (m *Metrics) UpdateBackendHealth(healthy bool) {
	if m == nil {
		return
	}
	m.backendHealthy.Set(boolGauge(healthy))
}

// UpdateModelLoaded updates the model loaded gauge.
func (m *Metrics) UpdateModelLoaded(loaded bool) {
	if m == nil {
		return
	}
	m.modelLoaded.Set(boolGauge(loaded))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
