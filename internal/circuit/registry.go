package circuit

import (
	"sync"

	"warden/internal/domain"
)

// Registry owns one breaker per resource plus the global breaker. Breakers
// are created lazily on first touch; cross-resource calls never coordinate
// beyond the registry map lock.
type Registry struct {
	mu        sync.Mutex
	threshold int
	global    *Breaker
	resources map[string]*Breaker
}

// NewRegistry creates a registry whose breakers trip after threshold
// consecutive CRITICAL failures.
func NewRegistry(threshold int) *Registry {
	return &Registry{
		threshold: threshold,
		global:    NewBreaker("", threshold),
		resources: make(map[string]*Breaker),
	}
}

func (r *Registry) breaker(resource string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.resources[resource]
	if !ok {
		b = NewBreaker(resource, r.threshold)
		r.resources[resource] = b
	}
	return b
}

// Allow reports whether an action of the given risk may proceed against the
// resource. While either the resource breaker or the global breaker is
// tripped, only SAFE read-only actions pass.
func (r *Registry) Allow(resource string, risk domain.RiskLevel, action domain.ActionType) bool {
	if !r.breaker(resource).Tripped() && !r.global.Tripped() {
		return true
	}
	return risk == domain.RiskSafe && action.IsReadOnly()
}

// ReportOutcome feeds one terminal result back into the breakers. Only
// CRITICAL-risk denials and execution failures count toward tripping; a
// successful outcome resets the streak, and a non-critical failure is neutral
// (it neither advances nor breaks a critical streak).
func (r *Registry) ReportOutcome(resource string, risk domain.RiskLevel, failed bool) (trippedNow bool) {
	b := r.breaker(resource)
	if failed {
		if risk != domain.RiskCritical {
			return false
		}
		resourceTripped := b.RecordFailure()
		globalTripped := r.global.RecordFailure()
		return resourceTripped || globalTripped
	}
	b.RecordSuccess()
	r.global.RecordSuccess()
	return false
}

// ConsecutiveFailures exposes the resource's current failure streak for the
// risk classifier's dynamic escalation rule.
func (r *Registry) ConsecutiveFailures(resource string) int {
	return r.breaker(resource).ConsecutiveFailures()
}

// Tripped reports whether the resource breaker or the global breaker is open.
func (r *Registry) Tripped(resource string) bool {
	return r.breaker(resource).Tripped() || r.global.Tripped()
}

// Reset closes the resource's breaker. When resource is empty the global
// breaker is reset instead. Operator action only.
func (r *Registry) Reset(resource string) {
	if resource == "" {
		r.global.Reset()
		return
	}
	r.breaker(resource).Reset()
}
