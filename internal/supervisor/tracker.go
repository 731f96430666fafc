package supervisor

import (
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"predict-console/internal/storage"
)

// Outcome describes how a proxied call ended.
type Outcome struct {
	HTTPStatus int
	BytesIn    int64
	BytesOut   int64
	Err        error // transport failure, nil when the backend answered
	Canceled   bool  // the browser went away first
}

// Tracker follows proxied calls from start to finish and fans the results
// out to storage, metrics and the event bus. Any of those may be nil.
type Tracker struct {
	mu       sync.Mutex
	inFlight map[string]*storage.Call

	store   storage.Store
	bus     *EventBus
	metrics *Metrics
	logger  *slog.Logger
}

// NewTracker creates a call tracker.
func NewTracker(store storage.Store, bus *EventBus, metrics *Metrics, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		inFlight: make(map[string]*storage.Call),
		store:    store,
		bus:      bus,
		metrics:  metrics,
		logger:   logger,
	}
}

// Start registers a new in-flight call and returns its ID.
func (t *Tracker) Start(route storage.Route, method, path string) string {
	now := time.Now()
	call := &storage.Call{
		ID:      uuid.NewString(),
		TSStart: now.UnixMilli(),
		Status:  storage.StatusInFlight,
		Route:   route,
		Method:  method,
		Path:    path,
	}

	t.mu.Lock()
	t.inFlight[call.ID] = call
	count := len(t.inFlight)
	t.mu.Unlock()

	t.metrics.UpdateInFlight(count)

	if t.store != nil {
		if err := t.store.Insert(call); err != nil {
			t.logger.Warn("failed to store call", "call_id", call.ID, "err", err)
		}
	}

	if t.bus != nil {
		t.bus.Publish(Event{
			Type:      EventCallStart,
			CallID:    call.ID,
			Timestamp: now,
			Route:     route,
			Method:    method,
			Path:      path,
		})
	}
	return call.ID
}

// Finish completes a call. Unknown IDs are ignored.
func (t *Tracker) Finish(id string, out Outcome) {
	t.mu.Lock()
	call, ok := t.inFlight[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.inFlight, id)
	count := len(t.inFlight)
	t.mu.Unlock()

	now := time.Now()
	end := now.UnixMilli()
	duration := now.Sub(time.UnixMilli(call.TSStart))
	durationMs := int(duration.Milliseconds())

	status, reason, errText := classify(out)

	t.metrics.UpdateInFlight(count)
	t.metrics.RecordCall(call.Route, status, duration, out.BytesIn, out.BytesOut)

	if t.store != nil {
		upd := storage.CallUpdate{
			TSEnd:      &end,
			Status:     &status,
			Reason:     &reason,
			HTTPStatus: &out.HTTPStatus,
			DurationMs: &durationMs,
			BytesIn:    &out.BytesIn,
			BytesOut:   &out.BytesOut,
			Error:      &errText,
		}
		if err := t.store.Update(id, upd); err != nil {
			t.logger.Warn("failed to update call", "call_id", id, "err", err)
		}
	}

	if t.bus != nil {
		evType := EventCallDone
		if status == storage.StatusError {
			evType = EventCallError
		}
		t.bus.Publish(Event{
			Type:       evType,
			CallID:     id,
			Timestamp:  now,
			Route:      call.Route,
			Method:     call.Method,
			Path:       call.Path,
			HTTPStatus: out.HTTPStatus,
			DurationMs: duration.Milliseconds(),
			BytesOut:   out.BytesOut,
			Status:     status,
			Error:      errText,
		})
	}
}

// InFlight returns the calls currently in flight, oldest first.
func (t *Tracker) InFlight() []storage.Call {
	t.mu.Lock()
	calls := make([]storage.Call, 0, len(t.inFlight))
	for _, c := range t.inFlight {
		calls = append(calls, *c)
	}
	t.mu.Unlock()

	sort.Slice(calls, func(i, j int) bool { return calls[i].TSStart < calls[j].TSStart })
	return calls
}

func classify(out Outcome) (storage.Status, storage.Reason, string) {
	switch {
	case out.Canceled:
		return storage.StatusError, storage.ReasonClientCanceled, "client canceled"
	case out.Err != nil:
		return storage.StatusError, storage.ReasonUpstreamError, out.Err.Error()
	case out.HTTPStatus >= 400:
		return storage.StatusError, storage.ReasonHTTPError, http.StatusText(out.HTTPStatus)
	default:
		return storage.StatusSuccess, storage.ReasonNone, ""
	}
}
