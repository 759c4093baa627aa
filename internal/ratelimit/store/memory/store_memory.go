package memory

import (
	"context"
	"sync"
	"time"

	"warden/internal/ratelimit"
)

// InMemoryWindowStore implements ratelimit.WindowStore with in-process
// sliding windows. Single-instance deployments only; use the Redis store when
// the engine runs replicated.
type InMemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
}

// slot is one reserved entry in a window.
type slot struct {
	id string
	at time.Time
}

// slidingWindow tracks reserved slots inside the trailing window. Entries are
// pruned lazily on each touch.
type slidingWindow struct {
	slots  []slot
	window time.Duration
}

func NewInMemoryWindowStore() *InMemoryWindowStore {
	return &InMemoryWindowStore{windows: make(map[string]*slidingWindow)}
}

// Reserve checks the ceiling and records a provisional slot while holding the
// store lock, so check+reserve is atomic with respect to concurrent callers.
func (s *InMemoryWindowStore) Reserve(_ context.Context, key, reservationID string, limit int, window time.Duration) (*ratelimit.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.getOrCreateWindow(key, window)
	w.prune(time.Now())

	if len(w.slots) >= limit {
		return &ratelimit.Result{Allowed: false, Remaining: 0, Limit: limit}, nil
	}

	w.slots = append(w.slots, slot{id: reservationID, at: time.Now()})
	return &ratelimit.Result{
		Allowed:     true,
		Remaining:   limit - len(w.slots),
		Limit:       limit,
		Reservation: ratelimit.Reservation{Key: key, ID: reservationID},
	}, nil
}

// Release drops the identified slot; unknown reservations are a no-op.
func (s *InMemoryWindowStore) Release(_ context.Context, key, reservationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key]
	if w == nil {
		return nil
	}
	for i, sl := range w.slots {
		if sl.id == reservationID {
			w.slots = append(w.slots[:i], w.slots[i+1:]...)
			return nil
		}
	}
	return nil
}

// Count returns the number of live slots for key.
func (s *InMemoryWindowStore) Count(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key]
	if w == nil {
		return 0, nil
	}
	w.prune(time.Now())
	return len(w.slots), nil
}

// prune removes slots older than the window.
func (w *slidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for ; i < len(w.slots); i++ {
		if w.slots[i].at.After(cutoff) {
			break
		}
	}
	w.slots = w.slots[i:]
}

// getOrCreateWindow must be called while holding s.mu.
func (s *InMemoryWindowStore) getOrCreateWindow(key string, window time.Duration) *slidingWindow {
	if w := s.windows[key]; w != nil {
		return w
	}
	w := &slidingWindow{window: window}
	s.windows[key] = w
	return w
}
