package supervisor

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthChecker_ModelLoaded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model_loaded": true, "model_file": "model.pkl"}`))
	}))
	defer server.Close()

	hc := NewHealthChecker(server.URL+"/health", 100*time.Millisecond, 5*time.Second, nil, nil, quietLogger())
	defer hc.Shutdown()

	time.Sleep(150 * time.Millisecond)

	if !hc.Healthy() {
		t.Error("expected health checker to be healthy")
	}
	snap := hc.Snapshot()
	if !snap.ModelLoaded || snap.ModelFile != "model.pkl" {
		t.Errorf("snapshot = %+v, want model.pkl loaded", snap)
	}
	if hc.LastError() != "" {
		t.Errorf("expected no error, got: %s", hc.LastError())
	}
}

func TestHealthChecker_HealthyWithoutJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	hc := NewHealthChecker(server.URL, 100*time.Millisecond, 5*time.Second, nil, nil, quietLogger())
	defer hc.Shutdown()

	time.Sleep(150 * time.Millisecond)

	if !hc.Healthy() {
		t.Error("expected healthy on plain 200")
	}
	if hc.Snapshot().ModelLoaded {
		t.Error("model_loaded should be false without a JSON body")
	}
}

func TestHealthChecker_Unhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	hc := NewHealthChecker(server.URL, 100*time.Millisecond, 5*time.Second, nil, nil, quietLogger())
	defer hc.Shutdown()

	time.Sleep(150 * time.Millisecond)

	if hc.Healthy() {
		t.Error("expected health checker to be unhealthy")
	}
	if got := hc.LastError(); got != "status code: 503" {
		t.Errorf("LastError = %q, want %q", got, "status code: 503")
	}
}

func TestHealthChecker_ConnectionError(t *testing.T) {
	hc := NewHealthChecker("http://127.0.0.1:1/health", 100*time.Millisecond, time.Second, nil, nil, quietLogger())
	defer hc.Shutdown()

	time.Sleep(150 * time.Millisecond)

	if hc.Healthy() {
		t.Error("expected unhealthy on connection error")
	}
	if hc.LastError() == "" {
		t.Error("expected error message for connection failure")
	}
}

func TestHealthChecker_PublishesChange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model_loaded": false}`))
	}))
	defer server.Close()

	bus := NewEventBus(10)
	defer bus.Shutdown()
	sub := bus.Subscribe()

	hc := NewHealthChecker(server.URL, time.Hour, 5*time.Second, nil, bus, quietLogger())
	defer hc.Shutdown()

	select {
	case ev := <-sub:
		if ev.Type != EventBackendHealth {
			t.Errorf("event type = %s, want %s", ev.Type, EventBackendHealth)
		}
		if ev.Healthy == nil || !*ev.Healthy {
			t.Errorf("event healthy = %v, want true", ev.Healthy)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no health event published")
	}
}

func TestHealthChecker_ShutdownTwice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	hc := NewHealthChecker(server.URL, 100*time.Millisecond, 5*time.Second, nil, nil, quietLogger())
	hc.Shutdown()
	hc.Shutdown()
}
