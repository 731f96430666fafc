package supervisor

import (
	"encoding/json"
	"sync"
	"time"

	"predict-console/internal/storage"
)

// EventType represents the type of lifecycle event.
type EventType string

const (
	EventCallStart     EventType = "call_start"
	EventCallDone      EventType = "call_done"
	EventCallError     EventType = "call_error"
	EventBackendHealth EventType = "backend_health"
)

// Event is a lifecycle event for a proxied call or the backend itself.
type Event struct {
	Type       EventType      `json:"type"`
	CallID     string         `json:"call_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Route      storage.Route  `json:"route,omitempty"`
	Method     string         `json:"method,omitempty"`
	Path       string         `json:"path,omitempty"`
	HTTPStatus int            `json:"http_status,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	BytesOut   int64          `json:"bytes_out,omitempty"`
	Status     storage.Status `json:"status,omitempty"`
	Healthy    *bool          `json:"healthy,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// EventBus fans events out to SSE and WebSocket consumers.
type EventBus struct {
	events      chan Event
	subscribers map[chan Event]struct{}
	mu          sync.RWMutex
	shutdown    chan struct{}
	once        sync.Once
}

// NewEventBus creates a new event bus with the specified buffer size.
func NewEventBus(bufferSize int) *EventBus {
	eb := &EventBus{
		events:      make(chan Event, bufferSize),
		subscribers: make(map[chan Event]struct{}),
		shutdown:    make(chan struct{}),
	}
	go eb.forward()
	return eb
}

func (eb *EventBus) forward() {
	for {
		select {
		case event := <-eb.events:
			eb.mu.RLock()
			for ch := range eb.subscribers {
				select {
				case ch <- event:
				default:
					// slow subscriber, drop
				}
			}
			eb.mu.RUnlock()
		case <-eb.shutdown:
			return
		}
	}
}

// Publish never blocks; events are dropped when the buffer is full or the
// bus is shut down.
func (eb *EventBus) Publish(event Event) {
	select {
	case <-eb.shutdown:
		return
	default:
	}
	select {
	case eb.events <- event:
	default:
	}
}

// Subscribe creates a new subscription channel.
func (eb *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 10)
	eb.mu.Lock()
	defer eb.mu.Unlock()
	select {
	case <-eb.shutdown:
		close(ch)
	default:
		eb.subscribers[ch] = struct{}{}
	}
	return ch
}

// Unsubscribe removes a subscription channel and closes it.
func (eb *EventBus) Unsubscribe(ch chan Event) {
	eb.mu.Lock()
	if _, exists := eb.subscribers[ch]; exists {
		delete(eb.subscribers, ch)
		close(ch)
	}
	eb.mu.Unlock()
}

// Subscribers returns the number of live subscriptions.
func (eb *EventBus) Subscribers() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Shutdown stops the forwarder and closes every subscriber channel.
func (eb *EventBus) Shutdown() {
	eb.once.Do(func() {
		eb.mu.Lock()
		close(eb.shutdown)
		for ch := range eb.subscribers {
			close(ch)
		}
		eb.subscribers = make(map[chan Event]struct{})
		eb.mu.Unlock()
	})
}

// FormatSSEEvent formats an event in Server-Sent Events format.
func FormatSSEEvent(event Event) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return "data: " + string(data) + "\n\n", nil
}
