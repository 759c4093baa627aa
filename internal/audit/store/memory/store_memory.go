package memory

import (
	"context"
	"sync"
	"time"

	"warden/internal/audit"
	"warden/internal/domain"
)

// defaultRingSize bounds the per-resource ring. The memory store backs the
// trailing-hour aggregates; long-term retention belongs to the Postgres store.
const defaultRingSize = 1024

// InMemoryStore keeps a bounded ring of entries per resource plus a flat
// recent list for cross-resource aggregates.
type InMemoryStore struct {
	mu       sync.RWMutex
	ringSize int
	byRes    map[string][]audit.Entry
	recent   []audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		ringSize: defaultRingSize,
		byRes:    make(map[string][]audit.Entry),
	}
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ring := append(s.byRes[entry.Request.Target], entry)
	if len(ring) > s.ringSize {
		ring = ring[len(ring)-s.ringSize:]
	}
	s.byRes[entry.Request.Target] = ring

	s.recent = append(s.recent, entry)
	if len(s.recent) > s.ringSize*4 {
		s.recent = s.recent[len(s.recent)-s.ringSize*4:]
	}
	return nil
}

func (s *InMemoryStore) SetOutcome(_ context.Context, requestID string, outcome domain.Outcome, latencyMS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.recent) - 1; i >= 0; i-- {
		if s.recent[i].Request.ID == requestID {
			s.recent[i].Outcome = outcome
			s.recent[i].LatencyMS = latencyMS
			ring := s.byRes[s.recent[i].Request.Target]
			for j := len(ring) - 1; j >= 0; j-- {
				if ring[j].Request.ID == requestID {
					ring[j].Outcome = outcome
					ring[j].LatencyMS = latencyMS
					break
				}
			}
			return nil
		}
	}
	return nil
}

func (s *InMemoryStore) ListByResource(_ context.Context, resource string, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring := s.byRes[resource]
	if limit <= 0 || limit > len(ring) {
		limit = len(ring)
	}
	// Newest first.
	out := make([]audit.Entry, 0, limit)
	for i := len(ring) - 1; i >= len(ring)-limit; i-- {
		out = append(out, ring[i])
	}
	return out, nil
}

func (s *InMemoryStore) HighRiskCount(_ context.Context, resource string, window time.Duration) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	count := 0
	for _, e := range s.byRes[resource] {
		if e.Timestamp.After(cutoff) && e.Risk >= domain.RiskHigh {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) DenialRatio(_ context.Context, window time.Duration) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	total, denied := 0, 0
	for _, e := range s.recent {
		if !e.Timestamp.After(cutoff) {
			continue
		}
		total++
		if e.Denied() {
			denied++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(denied) / float64(total), nil
}
