package approval

import (
	"time"

	"warden/internal/domain"
)

// State tracks one approval request through the workflow.
//
// Submitted -> (AutoApproved | PendingApproval)
// PendingApproval -> (Approved | Denied | Expired)
//
// AutoApproved, Approved, Denied, and Expired are terminal.
type State string

const (
	StateSubmitted       State = "submitted"
	StatePendingApproval State = "pending_approval"
	StateAutoApproved    State = "auto_approved"
	StateApproved        State = "approved"
	StateDenied          State = "denied"
	StateExpired         State = "expired"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateAutoApproved, StateApproved, StateDenied, StateExpired:
		return true
	}
	return false
}

// Request is the workflow's view of one pending human sign-off. The embedded
// action request gives approvers the risk level, target, and requester.
type Request struct {
	ID        string
	Action    domain.ActionRequest
	Risk      domain.RiskLevel
	State     State
	CreatedAt time.Time
	// ExpiresAt is zero for MEDIUM risk: those pend under the notification
	// channel's own SLA, not an engine timer.
	ExpiresAt time.Time
	DecidedBy string
	DecidedAt time.Time
}

// Resolution is delivered to the workflow's handler when a pending request
// reaches a terminal state, whether by human decision or by timer expiry.
type Resolution struct {
	Request Request
}
