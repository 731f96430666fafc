// Package storage keeps a bounded history of calls forwarded to the backend.
// It stores metadata only - no uploaded files or prediction payloads.
package storage

import (
	"time"
)

// Status represents the final status of a call.
type Status string

const (
	StatusInFlight Status = "in_flight"
	StatusSuccess  Status = "success"
	StatusError    Status = "error"
)

// Reason provides more detail about an error status.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonHTTPError      Reason = "http_error"      // backend answered non-2xx
	ReasonUpstreamError  Reason = "upstream_error"  // backend unreachable
	ReasonClientCanceled Reason = "client_canceled" // browser went away
)

// Route classifies the backend endpoint a call targeted.
type Route string

const (
	RoutePredict Route = "predict"
	RouteHealth  Route = "health"
	RouteRecords Route = "records"
	RouteOther   Route = "other"
)

// Call is one proxied request to the backend.
type Call struct {
	ID      string `json:"id"`
	TSStart int64  `json:"ts_start"` // unix ms
	TSEnd   *int64 `json:"ts_end"`   // nullable until complete
	Status  Status `json:"status"`
	Reason  Reason `json:"reason,omitempty"`

	Route  Route  `json:"route"`
	Method string `json:"method"`
	Path   string `json:"path"` // path as sent to the backend

	HTTPStatus int   `json:"http_status"`
	DurationMs int   `json:"duration_ms"`
	BytesIn    int64 `json:"bytes_in"`  // request body from the browser
	BytesOut   int64 `json:"bytes_out"` // response body to the browser

	Error string `json:"error,omitempty"`
}

// CallUpdate contains fields that can be updated after insert.
type CallUpdate struct {
	TSEnd      *int64
	Status     *Status
	Reason     *Reason
	HTTPStatus *int
	DurationMs *int
	BytesIn    *int64
	BytesOut   *int64
	Error      *string
}

// ListOptions filters for listing calls.
type ListOptions struct {
	Limit  int
	Offset int
	Status *Status
	Route  Route
	Window time.Duration // only calls within this window
}

// Overview contains summary statistics for a time window.
type Overview struct {
	TotalCalls     int     `json:"total_calls"`
	SuccessCount   int     `json:"success_count"`
	ErrorCount     int     `json:"error_count"`
	SuccessRate    float64 `json:"success_rate"`
	AvgDurationMs  int     `json:"avg_duration_ms"`
	P95DurationMs  int     `json:"p95_duration_ms"`
	TotalBytesIn   int64   `json:"total_bytes_in"`
	TotalBytesOut  int64   `json:"total_bytes_out"`
	UpstreamErrors int     `json:"upstream_errors"`
}

// RouteStat contains per-route rollup statistics.
type RouteStat struct {
	Route         Route   `json:"route"`
	CallCount     int     `json:"call_count"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs int     `json:"avg_duration_ms"`
}

// DataPoint represents a single point in a time series.
type DataPoint struct {
	Timestamp int64   `json:"ts"` // unix ms (bin start)
	Value     float64 `json:"value"`
}

// SeriesOptions configures time series queries.
type SeriesOptions struct {
	Window time.Duration
	Metric string // call_count, error_rate, duration_p95
	Route  Route  // optional filter
}

// Store is the interface for call history storage.
type Store interface {
	// Insert creates a new call record (at request start).
	Insert(c *Call) error

	// Update modifies an existing call (at completion).
	Update(id string, upd CallUpdate) error

	// GetByID retrieves a single call by ID.
	GetByID(id string) (*Call, error)

	// List retrieves calls with filtering and pagination, newest first.
	List(opts ListOptions) ([]Call, error)

	// Overview returns aggregate statistics for a time window.
	Overview(window time.Duration) (*Overview, error)

	// RouteStats returns per-route rollup statistics.
	RouteStats(window time.Duration) ([]RouteStat, error)

	// Series returns time-binned data for charts.
	Series(opts SeriesOptions) ([]DataPoint, error)

	// InFlightCount returns the number of in-flight calls.
	InFlightCount() (int, error)

	// Close releases resources.
	Close() error
}

// GetBinConfig returns the number of bins and interval for a time window.
// Used for consistent chart layouts.
func GetBinConfig(window time.Duration) (bins int, interval time.Duration) {
	switch {
	case window <= time.Hour:
		return 60, time.Minute
	case window <= 24*time.Hour:
		return 96, 15 * time.Minute
	default:
		return 168, time.Hour
	}
}

// binIndex places ts into one of bins buckets of width interval starting at
// cutoff. Timestamps at or past the end of the window land in the last bucket.
func binIndex(ts, cutoff int64, interval time.Duration, bins int) (int, bool) {
	if ts < cutoff || bins == 0 {
		return 0, false
	}
	idx := int((ts - cutoff) / interval.Milliseconds())
	if idx >= bins {
		idx = bins - 1
	}
	return idx, true
}

// applyUpdate copies the set fields of upd onto c.
func applyUpdate(c *Call, upd CallUpdate) {
	if upd.TSEnd != nil {
		c.TSEnd = upd.TSEnd
	}
	if upd.Status != nil {
		c.Status = *upd.Status
	}
	if upd.Reason != nil {
		c.Reason = *upd.Reason
	}
	if upd.HTTPStatus != nil {
		c.HTTPStatus = *upd.HTTPStatus
	}
	if upd.DurationMs != nil {
		c.DurationMs = *upd.DurationMs
	}
	if upd.BytesIn != nil {
		c.BytesIn = *upd.BytesIn
	}
	if upd.BytesOut != nil {
		c.BytesOut = *upd.BytesOut
	}
	if upd.Error != nil {
		c.Error = *upd.Error
	}
}

// p95 returns the 95th percentile of sorted durations.
func p95(sorted []int) int {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
