package handler

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"warden/internal/domain"
)

// AuthorizeRequest is the wire shape of an agent's action request.
type AuthorizeRequest struct {
	ID          string            `json:"id"`
	ActionType  string            `json:"action_type"`
	Target      string            `json:"target"`
	RequestedBy string            `json:"requested_by"`
	Parameters  map[string]string `json:"parameters"`
}

// Validate checks required fields and builds the domain request. A missing ID
// is filled in; an unknown action type is passed through so the policy table
// can fail closed on it.
func (r AuthorizeRequest) Validate() (domain.ActionRequest, error) {
	if r.ActionType == "" {
		return domain.ActionRequest{}, fmt.Errorf("action_type is required")
	}
	if r.Target == "" {
		return domain.ActionRequest{}, fmt.Errorf("target is required")
	}
	if r.RequestedBy == "" {
		return domain.ActionRequest{}, fmt.Errorf("requested_by is required")
	}
	id := r.ID
	if id == "" {
		id = uuid.NewString()
	}
	actionType, _ := domain.ParseActionType(r.ActionType)
	return domain.ActionRequest{
		ID:          id,
		Type:        actionType,
		Target:      r.Target,
		RequestedBy: r.RequestedBy,
		SubmittedAt: time.Now(),
		Parameters:  r.Parameters,
	}, nil
}

// ResolveRequest carries a human approval decision.
type ResolveRequest struct {
	Approver string `json:"approver"`
	Decision string `json:"decision"`
}

func (r ResolveRequest) Validate() (approve bool, err error) {
	if r.Approver == "" {
		return false, fmt.Errorf("approver is required")
	}
	switch r.Decision {
	case "approve":
		return true, nil
	case "deny":
		return false, nil
	default:
		return false, fmt.Errorf("decision must be approve or deny")
	}
}
