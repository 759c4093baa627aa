package domain

// DecisionKind enumerates the possible facade responses to an authorize call.
type DecisionKind string

const (
	DecisionExecute DecisionKind = "execute"
	DecisionDenied  DecisionKind = "denied"
	DecisionPending DecisionKind = "pending"
)

// DenialReason classifies why an action was not authorized. Denials are normal
// negative results, not errors; the agent is told "not authorized" and nothing
// propagates as an exception.
type DenialReason string

const (
	ReasonRateLimitExceeded  DenialReason = "rate_limit_exceeded"
	ReasonCircuitOpen        DenialReason = "circuit_open"
	ReasonApprovalDenied     DenialReason = "approval_denied"
	ReasonApprovalExpired    DenialReason = "approval_expired"
	ReasonStorageUnavailable DenialReason = "storage_unavailable"
)

// Decision is the outcome of one authorize call. Exactly one of the three
// kinds applies: Execute (run it now), Denied (with a reason), or Pending
// (a human approval round-trip is in flight under ApprovalID).
type Decision struct {
	Kind       DecisionKind
	Risk       RiskLevel
	Reason     DenialReason
	ApprovalID string
}

// DecisionPath records which branch of the governance pipeline produced the
// terminal disposition. It is the audit trail's primary dimension.
type DecisionPath string

const (
	PathAutoApproved   DecisionPath = "auto_approved"
	PathApproved       DecisionPath = "approved"
	PathDenied         DecisionPath = "denied"
	PathExpired        DecisionPath = "expired"
	PathRateLimited    DecisionPath = "rate_limited"
	PathCircuitBlocked DecisionPath = "circuit_blocked"
)

// Outcome records what happened after the terminal decision.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailure     Outcome = "failure"
	OutcomeNotExecuted Outcome = "not_executed"
)
