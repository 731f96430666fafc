package api

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"predict-console/internal/storage"
)

// OverviewResponse contains summary statistics and time series data.
type OverviewResponse struct {
	Summary SummaryData `json:"summary"`
	Series  SeriesData  `json:"series"`
}

// SummaryData contains aggregate statistics.
type SummaryData struct {
	TotalCalls     int     `json:"total_calls"`
	SuccessRate    float64 `json:"success_rate"`
	ErrorCount     int     `json:"error_count"`
	UpstreamErrors int     `json:"upstream_errors"`
	AvgDurationMs  int     `json:"avg_duration_ms"`
	P95DurationMs  int     `json:"p95_duration_ms"`
	BytesIn        int64   `json:"bytes_in"`
	BytesOut       int64   `json:"bytes_out"`
	BytesInHuman   string  `json:"bytes_in_human"`
	BytesOutHuman  string  `json:"bytes_out_human"`
	InFlight       int     `json:"in_flight"`
}

// SeriesData contains time-binned chart data.
type SeriesData struct {
	DurationP95 []storage.DataPoint `json:"duration_p95"`
	CallCount   []storage.DataPoint `json:"call_count"`
	ErrorRate   []storage.DataPoint `json:"error_rate"`
}

// handleOverview returns summary statistics and time series.
// GET /console/api/v1/overview?window=1h|24h|7d
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	window := parseWindow(r)
	cacheKey := window.String()

	s.overviewCacheMu.RLock()
	if cached, ok := s.overviewCache[cacheKey]; ok && time.Now().Before(cached.expiresAt) {
		s.overviewCacheMu.RUnlock()
		s.writeJSON(w, cached.data)
		return
	}
	s.overviewCacheMu.RUnlock()

	overview, err := s.store.Overview(window)
	if err != nil {
		s.logger.Error("failed to get overview", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get overview")
		return
	}

	inFlight, _ := s.store.InFlightCount()
	durationSeries, _ := s.store.Series(storage.SeriesOptions{Window: window, Metric: "duration_p95"})
	countSeries, _ := s.store.Series(storage.SeriesOptions{Window: window, Metric: "call_count"})
	errorSeries, _ := s.store.Series(storage.SeriesOptions{Window: window, Metric: "error_rate"})

	resp := &OverviewResponse{
		Summary: SummaryData{
			TotalCalls:     overview.TotalCalls,
			SuccessRate:    overview.SuccessRate,
			ErrorCount:     overview.ErrorCount,
			UpstreamErrors: overview.UpstreamErrors,
			AvgDurationMs:  overview.AvgDurationMs,
			P95DurationMs:  overview.P95DurationMs,
			BytesIn:        overview.TotalBytesIn,
			BytesOut:       overview.TotalBytesOut,
			BytesInHuman:   humanize.Bytes(uint64(overview.TotalBytesIn)),
			BytesOutHuman:  humanize.Bytes(uint64(overview.TotalBytesOut)),
			InFlight:       inFlight,
		},
		Series: SeriesData{
			DurationP95: durationSeries,
			CallCount:   countSeries,
			ErrorRate:   errorSeries,
		},
	}

	s.overviewCacheMu.Lock()
	s.overviewCache[cacheKey] = &cachedOverview{
		data:      resp,
		expiresAt: time.Now().Add(overviewCacheDuration),
	}
	s.overviewCacheMu.Unlock()

	s.writeJSON(w, resp)
}

// CallListItem is a summary of a call for list views.
type CallListItem struct {
	ID         string `json:"id"`
	Timestamp  int64  `json:"ts"`
	Age        string `json:"age"`
	Route      string `json:"route"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	HTTPStatus int    `json:"http_status"`
	DurationMs int    `json:"duration_ms"`
	BytesIn    string `json:"bytes_in"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// CallListResponse contains a page of calls.
type CallListResponse struct {
	Calls  []CallListItem `json:"calls"`
	Count  int            `json:"count"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// handleListCalls returns a paginated list of calls.
// GET /console/api/v1/calls?limit=50&offset=0&status=&route=&window=24h
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	q := r.URL.Query()
	limit := parseInt(q.Get("limit"), 50)
	if limit == 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	offset := parseInt(q.Get("offset"), 0)

	opts := storage.ListOptions{
		Limit:  limit,
		Offset: offset,
		Window: parseWindow(r),
		Route:  storage.Route(q.Get("route")),
	}
	if status := q.Get("status"); status != "" {
		st := storage.Status(status)
		opts.Status = &st
	}

	calls, err := s.store.List(opts)
	if err != nil {
		s.logger.Error("failed to list calls", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list calls")
		return
	}

	items := make([]CallListItem, len(calls))
	for i, c := range calls {
		items[i] = CallListItem{
			ID:         c.ID,
			Timestamp:  c.TSStart,
			Age:        humanize.Time(time.UnixMilli(c.TSStart)),
			Route:      string(c.Route),
			Method:     c.Method,
			Path:       c.Path,
			HTTPStatus: c.HTTPStatus,
			DurationMs: c.DurationMs,
			BytesIn:    humanize.Bytes(uint64(c.BytesIn)),
			Status:     string(c.Status),
			Reason:     string(c.Reason),
		}
	}

	s.writeJSON(w, CallListResponse{
		Calls:  items,
		Count:  len(items),
		Limit:  limit,
		Offset: offset,
	})
}

// handleGetCall returns the full record of one call.
// GET /console/api/v1/calls/{id}
func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request, id string) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	c, err := s.store.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get call", "err", err, "id", id)
		s.writeError(w, http.StatusInternalServerError, "failed to get call")
		return
	}
	if c == nil {
		s.writeError(w, http.StatusNotFound, "call not found")
		return
	}
	s.writeJSON(w, c)
}

// RouteListResponse contains per-route statistics.
type RouteListResponse struct {
	Routes []storage.RouteStat `json:"routes"`
}

// handleListRoutes returns per-route rollups.
// GET /console/api/v1/routes?window=24h
func (s *Server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	stats, err := s.store.RouteStats(parseWindow(r))
	if err != nil {
		s.logger.Error("failed to get route stats", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get route stats")
		return
	}
	s.writeJSON(w, RouteListResponse{Routes: stats})
}

// RouteSeriesResponse contains time series data for a route.
type RouteSeriesResponse struct {
	Route  storage.Route       `json:"route"`
	Metric string              `json:"metric"`
	Series []storage.DataPoint `json:"series"`
}

// handleRouteSeries returns time-binned data for one route.
// GET /console/api/v1/routes/{route}/series?window=1h&metric=call_count|error_rate|duration_p95
func (s *Server) handleRouteSeries(w http.ResponseWriter, r *http.Request, route storage.Route) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	metric := r.URL.Query().Get("metric")
	switch metric {
	case "":
		metric = "duration_p95"
	case "duration_p95", "call_count", "error_rate":
	default:
		s.writeError(w, http.StatusBadRequest, "unknown metric")
		return
	}

	series, err := s.store.Series(storage.SeriesOptions{
		Window: parseWindow(r),
		Metric: metric,
		Route:  route,
	})
	if err != nil {
		s.logger.Error("failed to get route series", "err", err, "route", route)
		s.writeError(w, http.StatusInternalServerError, "failed to get route series")
		return
	}

	s.writeJSON(w, RouteSeriesResponse{Route: route, Metric: metric, Series: series})
}

// ConfigResponse contains the effective configuration. Nothing here is secret.
type ConfigResponse struct {
	Mode              string   `json:"mode"`
	BackendURL        string   `json:"backend_url"`
	APIPrefix         string   `json:"api_prefix"`
	ProxyStripPrefix  bool     `json:"proxy_strip_prefix"`
	ProxyChangeOrigin bool     `json:"proxy_change_origin"`
	Variants          []string `json:"variants"`
	Storage           string   `json:"storage"`
	StorageMaxRows    int      `json:"storage_max_rows"`
	UploadMaxBytes    string   `json:"upload_max_bytes"`
	BackendTimeout    string   `json:"backend_timeout"`
	Features          struct {
		API     bool `json:"api"`
		Events  bool `json:"events"`
		Metrics bool `json:"metrics"`
		Storage bool `json:"storage"`
	} `json:"features"`
}

// handleConfig returns the current configuration.
// GET /console/api/v1/config
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	features := s.cfg.Features()

	resp := ConfigResponse{
		Mode:              string(s.cfg.Mode),
		BackendURL:        s.cfg.BackendURL,
		APIPrefix:         s.cfg.APIPrefix,
		ProxyStripPrefix:  s.cfg.ProxyStripPrefix,
		ProxyChangeOrigin: s.cfg.ProxyChangeOrigin,
		Storage:           string(s.cfg.Storage),
		StorageMaxRows:    s.cfg.StorageMaxRows,
		UploadMaxBytes:    humanize.IBytes(uint64(s.cfg.UploadMaxBytes)),
		BackendTimeout:    s.cfg.BackendTimeout.String(),
	}
	for _, v := range s.cfg.Variants {
		resp.Variants = append(resp.Variants, string(v))
	}
	resp.Features.API = features.API
	resp.Features.Events = features.Events
	resp.Features.Metrics = features.Metrics
	resp.Features.Storage = features.Storage

	s.writeJSON(w, resp)
}
