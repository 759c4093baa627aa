package domain

import (
	"time"
)

// ActionType identifies the class of operation an agent wants to perform
// against a managed resource.
//
// Usage: construct via ParseActionType at trust boundaries; direct casting
// bypasses validation and will be treated as an unknown type by the policy
// table (which fails closed to CRITICAL).
type ActionType string

const (
	ActionQuery        ActionType = "query"
	ActionRead         ActionType = "read"
	ActionWrite        ActionType = "write"
	ActionRestart      ActionType = "restart"
	ActionStop         ActionType = "stop"
	ActionConfigChange ActionType = "config_change"
	ActionApplyFix     ActionType = "apply_fix"
)

// validActionTypes is the single source of truth for known action types.
var validActionTypes = map[ActionType]bool{
	ActionQuery:        true,
	ActionRead:         true,
	ActionWrite:        true,
	ActionRestart:      true,
	ActionStop:         true,
	ActionConfigChange: true,
	ActionApplyFix:     true,
}

// ParseActionType constructs an ActionType from external input. Unknown values
// are returned as-is with ok=false so callers can apply fail-closed handling
// instead of rejecting outright.
func ParseActionType(s string) (ActionType, bool) {
	t := ActionType(s)
	return t, validActionTypes[t]
}

// IsKnown reports whether the action type has a compiled-in definition.
func (t ActionType) IsKnown() bool {
	return validActionTypes[t]
}

// IsReadOnly reports whether the action cannot mutate the target resource.
// Only read-only actions are admissible while a circuit is tripped.
func (t ActionType) IsReadOnly() bool {
	return t == ActionQuery || t == ActionRead
}

func (t ActionType) String() string {
	return string(t)
}

// ActionRequest is the immutable value describing one requested operation.
// It is created by the agent at request time, never mutated, and retained for
// audit linkage.
type ActionRequest struct {
	ID          string
	Type        ActionType
	Target      string
	RequestedBy string
	SubmittedAt time.Time
	Parameters  map[string]string
}
