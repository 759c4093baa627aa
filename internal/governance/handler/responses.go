package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"warden/internal/approval"
	"warden/internal/domain"
)

// DecisionResponse is the wire shape of an authorize decision.
type DecisionResponse struct {
	Decision   string `json:"decision"`
	Risk       string `json:"risk"`
	Reason     string `json:"reason,omitempty"`
	ApprovalID string `json:"approval_id,omitempty"`
}

func decisionResponse(d domain.Decision) DecisionResponse {
	return DecisionResponse{
		Decision:   string(d.Kind),
		Risk:       d.Risk.String(),
		Reason:     string(d.Reason),
		ApprovalID: d.ApprovalID,
	}
}

// ResolveResponse reports the approval's terminal state. Applied is false
// when the resolve was an idempotent no-op against an already-terminal
// approval.
type ResolveResponse struct {
	ApprovalID string    `json:"approval_id"`
	State      string    `json:"state"`
	DecidedBy  string    `json:"decided_by,omitempty"`
	DecidedAt  time.Time `json:"decided_at,omitempty"`
	Applied    bool      `json:"applied"`
}

func resolveResponse(req approval.Request, applied bool) ResolveResponse {
	return ResolveResponse{
		ApprovalID: req.ID,
		State:      string(req.State),
		DecidedBy:  req.DecidedBy,
		DecidedAt:  req.DecidedAt,
		Applied:    applied,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
