package supervisor

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"predict-console/internal/util"
)

// HealthSnapshot is the last observed state of the backend.
type HealthSnapshot struct {
	Healthy     bool      `json:"healthy"`
	ModelLoaded bool      `json:"model_loaded"`
	ModelFile   string    `json:"model_file,omitempty"`
	LastCheck   time.Time `json:"last_check"`
	LastError   string    `json:"last_error,omitempty"`
}

// HealthChecker periodically polls the backend health endpoint.
type HealthChecker struct {
	url           string
	checkInterval time.Duration
	timeout       time.Duration
	metrics       *Metrics
	bus           *EventBus
	logger        *slog.Logger
	client        *http.Client

	healthy atomic.Bool
	mu      sync.RWMutex
	snap    HealthSnapshot

	stopCh chan struct{}
	once   sync.Once
}

// NewHealthChecker creates a checker for healthURL and starts polling.
// bus and metrics may be nil.
func NewHealthChecker(healthURL string, checkInterval, timeout time.Duration, metrics *Metrics, bus *EventBus, logger *slog.Logger) *HealthChecker {
	if logger == nil {
		logger = slog.Default()
	}
	hc := &HealthChecker{
		url:           healthURL,
		checkInterval: checkInterval,
		timeout:       timeout,
		metrics:       metrics,
		bus:           bus,
		logger:        logger,
		client:        &http.Client{Timeout: timeout},
		stopCh:        make(chan struct{}),
	}

	go hc.run()
	return hc
}

func (hc *HealthChecker) run() {
	hc.check()

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hc.check()
		case <-hc.stopCh:
			return
		}
	}
}

// check performs a single GET against the health endpoint. Any 2xx answer
// marks the backend healthy; model_loaded is read from a JSON body if present.
func (hc *HealthChecker) check() {
	ctx, cancel := context.WithTimeout(context.Background(), hc.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.url, nil)
	if err != nil {
		hc.update(HealthSnapshot{LastError: err.Error()})
		return
	}

	resp, err := hc.client.Do(req)
	if err != nil {
		hc.update(HealthSnapshot{LastError: err.Error()})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		hc.update(HealthSnapshot{LastError: "status code: " + strconv.Itoa(resp.StatusCode)})
		return
	}

	snap := HealthSnapshot{Healthy: true}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil {
		if m, err := util.DecodeJSONMap(body); err == nil {
			snap.ModelLoaded = util.Truthy(m["model_loaded"])
			snap.ModelFile, _ = util.ToString(m["model_file"])
		}
	}
	hc.update(snap)
}

func (hc *HealthChecker) update(snap HealthSnapshot) {
	snap.LastCheck = time.Now()

	hc.mu.Lock()
	prev := hc.snap
	hc.snap = snap
	hc.mu.Unlock()
	hc.healthy.Store(snap.Healthy)

	if snap.LastError != "" {
		hc.logger.Debug("backend health check failed", "error", snap.LastError)
	}

	hc.metrics.UpdateBackendHealth(snap.Healthy)
	hc.metrics.UpdateModelLoaded(snap.ModelLoaded)

	changed := prev.LastCheck.IsZero() || prev.Healthy != snap.Healthy || prev.ModelLoaded != snap.ModelLoaded
	if changed {
		hc.logger.Info("backend health changed",
			"healthy", snap.Healthy,
			"model_loaded", snap.ModelLoaded,
			"model_file", snap.ModelFile)
		if hc.bus != nil {
			hc.bus.Publish(Event{
				Type:      EventBackendHealth,
				Timestamp: snap.LastCheck,
				Healthy:   &snap.Healthy,
				Error:     snap.LastError,
			})
		}
	}
}

// Healthy returns whether the backend answered the last check with 2xx.
func (hc *HealthChecker) Healthy() bool {
	return hc.healthy.Load()
}

// Snapshot returns the last observed state.
func (hc *HealthChecker) Snapshot() HealthSnapshot {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.snap
}

// LastError returns the last error message, if any.
func (hc *HealthChecker) LastError() string {
	return hc.Snapshot().LastError
}

// Shutdown stops the health checker.
func (hc *HealthChecker) Shutdown() {
	hc.once.Do(func() { close(hc.stopCh) })
}
