// Package api provides the versioned REST API for call telemetry.
// All endpoints live under /console/api/v1/ so they never collide with the
// proxied /api prefix.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"predict-console/internal/config"
	"predict-console/internal/storage"
)

const (
	// Prefix is the base path for all API endpoints.
	Prefix = "/console/api/v1"

	// Cache duration for overview responses (prevents refresh storms).
	overviewCacheDuration = 2 * time.Second

	maxListLimit = 500
)

// Server handles API requests for telemetry data.
type Server struct {
	store  storage.Store
	cfg    config.Config
	logger *slog.Logger

	overviewCache   map[string]*cachedOverview
	overviewCacheMu sync.RWMutex
}

type cachedOverview struct {
	data      *OverviewResponse
	expiresAt time.Time
}

// NewServer creates a new API server. store may be nil when storage is off.
func NewServer(store storage.Store, cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:         store,
		cfg:           cfg,
		logger:        logger,
		overviewCache: make(map[string]*cachedOverview),
	}
}

// ServeHTTP routes paths under Prefix.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, Prefix)
	if path == r.URL.Path {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch {
	case path == "/overview":
		s.handleOverview(w, r)
	case path == "/calls":
		s.handleListCalls(w, r)
	case strings.HasPrefix(path, "/calls/"):
		s.handleGetCall(w, r, strings.TrimPrefix(path, "/calls/"))
	case path == "/routes":
		s.handleListRoutes(w, r)
	case strings.HasPrefix(path, "/routes/") && strings.HasSuffix(path, "/series"):
		route := strings.TrimSuffix(strings.TrimPrefix(path, "/routes/"), "/series")
		s.handleRouteSeries(w, r, storage.Route(route))
	case path == "/config":
		s.handleConfig(w, r)
	default:
		http.NotFound(w, r)
	}
}

// Handles reports whether path belongs to the API.
func (s *Server) Handles(path string) bool {
	return strings.HasPrefix(path, Prefix+"/")
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func parseWindow(r *http.Request) time.Duration {
	w := r.URL.Query().Get("window")
	switch w {
	case "1h":
		return time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	case "24h", "":
		return 24 * time.Hour
	default:
		if d, err := time.ParseDuration(w); err == nil && d > 0 {
			return d
		}
		return 24 * time.Hour
	}
}

func parseInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
