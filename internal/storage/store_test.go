package storage

import (
	"fmt"
	"testing"
	"time"
)

func TestGetBinConfig(t *testing.T) {
	tests := []struct {
		window       time.Duration
		wantBins     int
		wantInterval time.Duration
	}{
		{30 * time.Minute, 60, time.Minute},
		{time.Hour, 60, time.Minute},
		{2 * time.Hour, 96, 15 * time.Minute},
		{24 * time.Hour, 96, 15 * time.Minute},
		{48 * time.Hour, 168, time.Hour},
		{7 * 24 * time.Hour, 168, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.window.String(), func(t *testing.T) {
			bins, interval := GetBinConfig(tt.window)
			if bins != tt.wantBins {
				t.Errorf("bins = %d, want %d", bins, tt.wantBins)
			}
			if interval != tt.wantInterval {
				t.Errorf("interval = %v, want %v", interval, tt.wantInterval)
			}
		})
	}
}

func TestBinIndex(t *testing.T) {
	const cutoff = int64(1_000_000)
	tests := []struct {
		name   string
		ts     int64
		want   int
		wantOK bool
	}{
		{"before window", cutoff - 1, 0, false},
		{"window start", cutoff, 0, true},
		{"inside", cutoff + 90_000, 1, true},
		{"window end", cutoff + 60*60_000, 59, true},
		{"clock skew", cutoff + 61*60_000, 59, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := binIndex(tt.ts, cutoff, time.Minute, 60)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("binIndex(%d) = %d, %v, want %d, %v", tt.ts, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestMemoryStore_SeriesIncludesNewestCall(t *testing.T) {
	s := NewMemoryStore(10)
	_ = s.Insert(&Call{ID: "now", TSStart: time.Now().UnixMilli(), Status: StatusSuccess, Route: RoutePredict})

	points, err := s.Series(SeriesOptions{Window: time.Hour, Metric: "call_count", Route: RoutePredict})
	if err != nil {
		t.Fatalf("Series error: %v", err)
	}
	if got := points[len(points)-1].Value; got != 1 {
		t.Errorf("last bin call_count = %v, want 1", got)
	}
}

func TestP95(t *testing.T) {
	if got := p95(nil); got != 0 {
		t.Errorf("p95(nil) = %d, want 0", got)
	}
	vals := make([]int, 100)
	for i := range vals {
		vals[i] = i + 1
	}
	if got := p95(vals); got != 96 {
		t.Errorf("p95(1..100) = %d, want 96", got)
	}
}

func TestMemoryStore_RingBuffer(t *testing.T) {
	s := NewMemoryStore(3)
	for i := 0; i < 5; i++ {
		if err := s.Insert(&Call{ID: fmt.Sprintf("c%d", i), TSStart: time.Now().UnixMilli(), Status: StatusSuccess}); err != nil {
			t.Fatalf("Insert error: %v", err)
		}
	}

	all, _ := s.List(ListOptions{})
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].ID != "c4" || all[2].ID != "c2" {
		t.Errorf("order = %s..%s, want c4..c2", all[0].ID, all[2].ID)
	}
	if got, _ := s.GetByID("c0"); got != nil {
		t.Error("evicted call still reachable by ID")
	}
	// updates to evicted rows are ignored
	status := StatusError
	if err := s.Update("c0", CallUpdate{Status: &status}); err != nil {
		t.Errorf("Update(evicted) error: %v", err)
	}
}

func TestMemoryStore_UpdateAndFilters(t *testing.T) {
	s := NewMemoryStore(100)
	now := time.Now().UnixMilli()

	_ = s.Insert(&Call{ID: "a", TSStart: now, Status: StatusInFlight, Route: RoutePredict})
	_ = s.Insert(&Call{ID: "b", TSStart: now, Status: StatusInFlight, Route: RouteHealth})
	_ = s.Insert(&Call{ID: "old", TSStart: now - 2*time.Hour.Milliseconds(), Status: StatusSuccess, Route: RoutePredict, DurationMs: 10})

	if n, _ := s.InFlightCount(); n != 2 {
		t.Errorf("InFlightCount = %d, want 2", n)
	}

	end := now + 40
	status := StatusSuccess
	dur := 40
	out := int64(17)
	if err := s.Update("a", CallUpdate{TSEnd: &end, Status: &status, DurationMs: &dur, BytesOut: &out}); err != nil {
		t.Fatalf("Update error: %v", err)
	}

	got, _ := s.GetByID("a")
	if got.Status != StatusSuccess || got.DurationMs != 40 || got.BytesOut != 17 || got.TSEnd == nil {
		t.Errorf("updated call = %+v", got)
	}
	if n, _ := s.InFlightCount(); n != 1 {
		t.Errorf("InFlightCount = %d, want 1", n)
	}

	recent, _ := s.List(ListOptions{Window: time.Hour})
	if len(recent) != 2 {
		t.Errorf("window filter returned %d, want 2", len(recent))
	}
	predict, _ := s.List(ListOptions{Route: RoutePredict})
	if len(predict) != 2 {
		t.Errorf("route filter returned %d, want 2", len(predict))
	}
	page, _ := s.List(ListOptions{Offset: 1, Limit: 1})
	if len(page) != 1 || page[0].ID != "b" {
		t.Errorf("page = %+v, want [b]", page)
	}
	if empty, _ := s.List(ListOptions{Offset: 10}); empty != nil {
		t.Errorf("offset past end = %+v, want nil", empty)
	}
}

func TestMemoryStore_OverviewAndRouteStats(t *testing.T) {
	s := NewMemoryStore(100)
	now := time.Now().UnixMilli()

	calls := []Call{
		{Status: StatusSuccess, Route: RoutePredict, DurationMs: 100, BytesIn: 1000},
		{Status: StatusSuccess, Route: RoutePredict, DurationMs: 120, BytesIn: 1000},
		{Status: StatusError, Reason: ReasonUpstreamError, Route: RouteHealth, DurationMs: 5},
		{Status: StatusInFlight, Route: RouteRecords},
	}
	for i := range calls {
		calls[i].ID = fmt.Sprintf("o%d", i)
		calls[i].TSStart = now
		_ = s.Insert(&calls[i])
	}

	o, err := s.Overview(time.Hour)
	if err != nil {
		t.Fatalf("Overview error: %v", err)
	}
	if o.TotalCalls != 4 || o.SuccessCount != 2 || o.ErrorCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 4/2/1", o.TotalCalls, o.SuccessCount, o.ErrorCount)
	}
	if o.SuccessRate != 0.5 {
		t.Errorf("SuccessRate = %v, want 0.5", o.SuccessRate)
	}
	if o.UpstreamErrors != 1 {
		t.Errorf("UpstreamErrors = %d, want 1", o.UpstreamErrors)
	}
	if o.AvgDurationMs != 75 {
		t.Errorf("AvgDurationMs = %d, want 75", o.AvgDurationMs)
	}
	if o.P95DurationMs != 120 {
		t.Errorf("P95DurationMs = %d, want 120", o.P95DurationMs)
	}

	stats, _ := s.RouteStats(time.Hour)
	if len(stats) != 3 {
		t.Fatalf("RouteStats len = %d, want 3", len(stats))
	}
	if stats[0].Route != RoutePredict || stats[0].CallCount != 2 || stats[0].SuccessRate != 1 {
		t.Errorf("stats[0] = %+v", stats[0])
	}
	if stats[0].AvgDurationMs != 110 {
		t.Errorf("predict avg = %d, want 110", stats[0].AvgDurationMs)
	}
}

func TestMemoryStore_SeriesErrorRate(t *testing.T) {
	s := NewMemoryStore(100)
	now := time.Now().UnixMilli()
	_ = s.Insert(&Call{ID: "1", TSStart: now, Status: StatusSuccess})
	_ = s.Insert(&Call{ID: "2", TSStart: now, Status: StatusError})

	points, err := s.Series(SeriesOptions{Window: time.Hour, Metric: "error_rate"})
	if err != nil {
		t.Fatalf("Series error: %v", err)
	}
	var found bool
	for _, p := range points {
		if p.Value != 0 {
			found = true
			if p.Value != 0.5 {
				t.Errorf("error_rate = %v, want 0.5", p.Value)
			}
		}
	}
	if !found {
		t.Error("no non-empty bin in series")
	}
}
