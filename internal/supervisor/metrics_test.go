package supervisor

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"predict-console/internal/storage"
)

func TestMetrics_Singleton(t *testing.T) {
	if NewMetrics() != NewMetrics() {
		t.Error("NewMetrics should return the same collector")
	}
}

func TestMetrics_RecordCall(t *testing.T) {
	m := NewMetrics()

	before := testutil.ToFloat64(m.callsTotal.WithLabelValues("predict", "success"))
	m.RecordCall(storage.RoutePredict, storage.StatusSuccess, 250*time.Millisecond, 2048, 32)
	m.RecordCall(storage.RoutePredict, storage.StatusSuccess, 100*time.Millisecond, 0, 0)

	if got := testutil.ToFloat64(m.callsTotal.WithLabelValues("predict", "success")); got != before+2 {
		t.Errorf("calls_total = %v, want %v", got, before+2)
	}

	// empty labels are normalized
	m.RecordCall("", "", time.Millisecond, 0, 0)
	if got := testutil.ToFloat64(m.callsTotal.WithLabelValues("other", "unknown")); got < 1 {
		t.Errorf("normalized calls_total = %v, want >= 1", got)
	}
}

func TestMetrics_Gauges(t *testing.T) {
	m := NewMetrics()

	m.UpdateBackendHealth(true)
	if got := testutil.ToFloat64(m.backendHealthy); got != 1 {
		t.Errorf("backend_healthy = %v, want 1", got)
	}
	m.UpdateBackendHealth(false)
	if got := testutil.ToFloat64(m.backendHealthy); got != 0 {
		t.Errorf("backend_healthy = %v, want 0", got)
	}

	m.UpdateModelLoaded(true)
	if got := testutil.ToFloat64(m.modelLoaded); got != 1 {
		t.Errorf("model_loaded = %v, want 1", got)
	}

	m.UpdateInFlight(3)
	if got := testutil.ToFloat64(m.inFlightCalls); got != 3 {
		t.Errorf("in_flight = %v, want 3", got)
	}

	m.UpdateSessions(2)
	if got := testutil.ToFloat64(m.sessions); got != 2 {
		t.Errorf("sessions = %v, want 2", got)
	}
}

func TestMetrics_RecordAction(t *testing.T) {
	m := NewMetrics()

	c := m.consoleActions.WithLabelValues("upload", "predict", "validation")
	before := testutil.ToFloat64(c)
	m.RecordAction("upload", "predict", "validation")
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Errorf("actions_total = %v, want %v", got, before+1)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordCall(storage.RouteHealth, storage.StatusError, time.Second, 0, 0)
	m.RecordAction("records", "load_records", "http")
	m.UpdateInFlight(1)
	m.UpdateSessions(1)
	m.UpdateBackendHealth(true)
	m.UpdateModelLoaded(true)
}
