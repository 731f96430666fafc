package console

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session holds the controllers of one browser.
type Session struct {
	ID      string
	Upload  *UploadConsole
	Records *RecordConsole

	lastSeen time.Time
}

// Sessions maps opaque browser cookies to controllers and expires idle ones.
type Sessions struct {
	api    Backend
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	items map[string]*Session

	stopCh chan struct{}
	once   sync.Once
}

// NewSessions creates a registry and starts its janitor.
func NewSessions(api Backend, ttl time.Duration, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sessions{
		api:    api,
		ttl:    ttl,
		logger: logger,
		items:  make(map[string]*Session),
		stopCh: make(chan struct{}),
	}
	go s.run()
	return s
}

// Get returns the session for id, creating a new one when id is unknown or
// expired. created reports whether the caller must hand out a new cookie.
func (s *Sessions) Get(id string) (sess *Session, created bool) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.items[id]; ok && now.Sub(sess.lastSeen) < s.ttl {
		sess.lastSeen = now
		return sess, false
	}

	sess = &Session{
		ID:       uuid.NewString(),
		Upload:   NewUploadConsole(s.api, s.logger),
		Records:  NewRecordConsole(s.api, s.logger),
		lastSeen: now,
	}
	s.items[sess.ID] = sess
	return sess, true
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Sweep drops sessions idle for longer than the TTL.
func (s *Sessions) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.items {
		if now.Sub(sess.lastSeen) >= s.ttl {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

func (s *Sessions) run() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				s.logger.Debug("expired console sessions", "removed", n)
			}
		case <-s.stopCh:
			return
		}
	}
}

// Shutdown stops the janitor.
func (s *Sessions) Shutdown() {
	s.once.Do(func() { close(s.stopCh) })
}
