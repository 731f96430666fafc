package storage

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store using an in-memory ring buffer.
// Used when STORAGE=memory and as the fallback when SQLite is unavailable.
type MemoryStore struct {
	mu      sync.RWMutex
	calls   []Call
	byID    map[string]int // ID -> index in calls
	maxRows int
	head    int // next write position
	count   int
}

// NewMemoryStore creates a new in-memory store holding at most maxRows calls.
func NewMemoryStore(maxRows int) *MemoryStore {
	if maxRows <= 0 {
		maxRows = 1
	}
	return &MemoryStore{
		calls:   make([]Call, maxRows),
		byID:    make(map[string]int),
		maxRows: maxRows,
	}
}

// Insert adds a new call, overwriting the oldest when full.
func (s *MemoryStore) Insert(c *Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == s.maxRows {
		delete(s.byID, s.calls[s.head].ID)
	}

	s.calls[s.head] = *c
	s.byID[c.ID] = s.head

	s.head = (s.head + 1) % s.maxRows
	if s.count < s.maxRows {
		s.count++
	}
	return nil
}

// Update modifies an existing call. Unknown IDs are ignored; the row may
// already have been evicted.
func (s *MemoryStore) Update(id string, upd CallUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil
	}
	applyUpdate(&s.calls[idx], upd)
	return nil
}

// GetByID retrieves a single call. It returns nil, nil when not found.
func (s *MemoryStore) GetByID(id string) (*Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	c := s.calls[idx]
	return &c, nil
}

// List returns calls matching the filter options.
func (s *MemoryStore) List(opts ListOptions) ([]Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := int64(0)
	if opts.Window > 0 {
		cutoff = time.Now().UnixMilli() - opts.Window.Milliseconds()
	}

	var filtered []Call
	for _, c := range s.collectOrdered() {
		if opts.Status != nil && c.Status != *opts.Status {
			continue
		}
		if opts.Route != "" && c.Route != opts.Route {
			continue
		}
		if cutoff > 0 && c.TSStart < cutoff {
			continue
		}
		filtered = append(filtered, c)
	}

	if opts.Offset >= len(filtered) {
		return nil, nil
	}
	filtered = filtered[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(filtered) {
		filtered = filtered[:opts.Limit]
	}
	return filtered, nil
}

// Overview returns aggregate statistics.
func (s *MemoryStore) Overview(window time.Duration) (*Overview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().UnixMilli() - window.Milliseconds()

	var o Overview
	var durations []int
	for _, c := range s.collectOrdered() {
		if c.TSStart < cutoff {
			continue
		}

		o.TotalCalls++
		switch c.Status {
		case StatusSuccess:
			o.SuccessCount++
		case StatusError:
			o.ErrorCount++
		}
		if c.Reason == ReasonUpstreamError {
			o.UpstreamErrors++
		}
		if c.Status != StatusInFlight && c.DurationMs > 0 {
			durations = append(durations, c.DurationMs)
		}
		o.TotalBytesIn += c.BytesIn
		o.TotalBytesOut += c.BytesOut
	}

	if o.TotalCalls > 0 {
		o.SuccessRate = float64(o.SuccessCount) / float64(o.TotalCalls)
	}
	if len(durations) > 0 {
		sort.Ints(durations)
		sum := 0
		for _, d := range durations {
			sum += d
		}
		o.AvgDurationMs = sum / len(durations)
		o.P95DurationMs = p95(durations)
	}
	return &o, nil
}

// RouteStats returns per-route statistics, busiest route first.
func (s *MemoryStore) RouteStats(window time.Duration) ([]RouteStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().UnixMilli() - window.Milliseconds()

	byRoute := make(map[Route][]Call)
	for _, c := range s.collectOrdered() {
		if c.TSStart < cutoff {
			continue
		}
		byRoute[c.Route] = append(byRoute[c.Route], c)
	}

	stats := make([]RouteStat, 0, len(byRoute))
	for route, calls := range byRoute {
		rs := RouteStat{Route: route, CallCount: len(calls)}

		var success, durSum, durCount int
		for _, c := range calls {
			if c.Status == StatusSuccess {
				success++
			}
			if c.Status != StatusInFlight {
				durSum += c.DurationMs
				durCount++
			}
		}
		rs.SuccessRate = float64(success) / float64(rs.CallCount)
		if durCount > 0 {
			rs.AvgDurationMs = durSum / durCount
		}
		stats = append(stats, rs)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].CallCount != stats[j].CallCount {
			return stats[i].CallCount > stats[j].CallCount
		}
		return stats[i].Route < stats[j].Route
	})
	return stats, nil
}

// Series returns time-binned data for charts.
func (s *MemoryStore) Series(opts SeriesOptions) ([]DataPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bins, interval := GetBinConfig(opts.Window)
	cutoff := time.Now().Add(-opts.Window)

	points := make([]DataPoint, bins)
	for i := range points {
		points[i] = DataPoint{Timestamp: cutoff.Add(time.Duration(i) * interval).UnixMilli()}
	}

	binValues := make([][]float64, bins)
	for _, c := range s.collectOrdered() {
		if opts.Route != "" && c.Route != opts.Route {
			continue
		}
		binIdx, ok := binIndex(c.TSStart, cutoff.UnixMilli(), interval, bins)
		if !ok {
			continue
		}

		var value float64
		switch opts.Metric {
		case "error_rate":
			if c.Status == StatusError {
				value = 1
			}
		case "duration_p95":
			if c.Status == StatusInFlight {
				continue
			}
			value = float64(c.DurationMs)
		default:
			value = 1
		}
		binValues[binIdx] = append(binValues[binIdx], value)
	}

	for i, vals := range binValues {
		if len(vals) == 0 {
			continue
		}
		switch opts.Metric {
		case "error_rate":
			sum := 0.0
			for _, v := range vals {
				sum += v
			}
			points[i].Value = sum / float64(len(vals))
		case "duration_p95":
			sort.Float64s(vals)
			idx := int(float64(len(vals)) * 0.95)
			if idx >= len(vals) {
				idx = len(vals) - 1
			}
			points[i].Value = vals[idx]
		default:
			points[i].Value = float64(len(vals))
		}
	}
	return points, nil
}

// InFlightCount returns the number of in-flight calls.
func (s *MemoryStore) InFlightCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for i := 0; i < s.count; i++ {
		idx := (s.head - 1 - i + s.maxRows) % s.maxRows
		if s.calls[idx].Status == StatusInFlight {
			count++
		}
	}
	return count, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// collectOrdered returns all calls newest first.
func (s *MemoryStore) collectOrdered() []Call {
	if s.count == 0 {
		return nil
	}
	result := make([]Call, 0, s.count)
	for i := 0; i < s.count; i++ {
		idx := (s.head - 1 - i + s.maxRows) % s.maxRows
		result = append(result, s.calls[idx])
	}
	return result
}
