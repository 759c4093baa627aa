// Package circuit implements the governance kill-switch: per-resource
// breakers plus one global breaker that trip after repeated CRITICAL-risk
// denials or execution failures and block further non-safe actions until an
// operator resets them.
package circuit

import (
	"sync"
	"time"
)

// Breaker tracks consecutive failures for one resource (or globally). Unlike
// a classic availability breaker there is no half-open probing here: the
// action domain is service lifecycle operations, where speculative probing is
// unsafe. Reset is manual only.
type Breaker struct {
	mu                  sync.Mutex
	name                string
	threshold           int
	consecutiveFailures int
	tripped             bool
	trippedAt           time.Time
}

// NewBreaker creates a closed breaker that trips after threshold consecutive
// failures. A threshold below 1 is coerced to 1.
func NewBreaker(name string, threshold int) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{name: name, threshold: threshold}
}

// Name returns the resource this breaker guards ("" for the global breaker).
func (b *Breaker) Name() string {
	return b.name
}

// RecordFailure counts one CRITICAL denial or execution failure. It returns
// true when this call tripped the breaker (false if already tripped).
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	if b.tripped {
		return false
	}
	if b.consecutiveFailures >= b.threshold {
		b.tripped = true
		b.trippedAt = time.Now()
		return true
	}
	return false
}

// RecordSuccess resets the consecutive-failure streak. It does not close a
// tripped breaker; only Reset does.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.tripped {
		b.consecutiveFailures = 0
	}
}

// Tripped reports whether the breaker is open.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

// TrippedAt returns when the breaker opened (zero if closed).
func (b *Breaker) TrippedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trippedAt
}

// ConsecutiveFailures returns the current failure streak.
func (b *Breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// Reset closes the breaker and clears its counters. Operator action only.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripped = false
	b.trippedAt = time.Time{}
	b.consecutiveFailures = 0
}
