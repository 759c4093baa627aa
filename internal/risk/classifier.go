// Package risk computes the effective risk level of an action request by
// combining the static policy table with dynamic escalation rules.
package risk

import (
	"warden/internal/domain"
	"warden/internal/policy"
)

// FailureHistory is the slice of circuit state the classifier reads. Satisfied
// by *circuit.Registry.
type FailureHistory interface {
	ConsecutiveFailures(resource string) int
}

// failureEscalationFloor is the consecutive-failure count at which a
// resource's history escalates classification by one level.
const failureEscalationFloor = 2

// Classifier derives a risk level for each request. It is stateless beyond
// its read-only collaborators and safe for concurrent use.
type Classifier struct {
	table   *policy.Table
	history FailureHistory
}

// NewClassifier builds a classifier over the policy table and the circuit
// failure history.
func NewClassifier(table *policy.Table, history FailureHistory) *Classifier {
	return &Classifier{table: table, history: history}
}

// Classification carries the computed level plus the facts the audit trail
// wants about how it was reached.
type Classification struct {
	Level         domain.RiskLevel
	UnknownAction bool
	Restricted    bool
}

// Classify computes the effective risk for a request. Escalation is monotonic:
// restricted targets and failure-laden resources only ever raise the level,
// clamped at CRITICAL. Unknown action types resolve to the policy table's
// CRITICAL default row (fail closed).
func (c *Classifier) Classify(req domain.ActionRequest) Classification {
	base, known := c.table.BaseRisk(req.Type)
	out := Classification{Level: base, UnknownAction: !known}

	if c.table.IsRestricted(req.Target) {
		out.Restricted = true
		out.Level = out.Level.Escalate(1)
	}
	if c.history.ConsecutiveFailures(req.Target) >= failureEscalationFloor {
		out.Level = out.Level.Escalate(1)
	}
	return out
}
