package audit

import (
	"time"

	"warden/internal/domain"
)

// Entry is the immutable append-only record of one terminal governance
// decision. Every action request produces exactly one terminal entry,
// regardless of which path disposed of it.
type Entry struct {
	Request   domain.ActionRequest `json:"request"`
	Risk      domain.RiskLevel     `json:"risk"`
	RiskName  string               `json:"risk_name"`
	Path      domain.DecisionPath  `json:"path"`
	Outcome   domain.Outcome       `json:"outcome"`
	Timestamp time.Time            `json:"timestamp"`
	LatencyMS int64                `json:"latency_ms"`

	// ApprovalID and Approver are set on decisions that went through the
	// human-approval round trip. Expired approvals carry an empty Approver,
	// which is how the trail distinguishes timeouts from explicit denials.
	ApprovalID string `json:"approval_id,omitempty"`
	Approver   string `json:"approver,omitempty"`

	Reason domain.DenialReason `json:"reason,omitempty"`
}

// Denied reports whether the entry records a denial-class disposition.
func (e Entry) Denied() bool {
	switch e.Path {
	case domain.PathDenied, domain.PathExpired, domain.PathRateLimited, domain.PathCircuitBlocked:
		return true
	}
	return false
}
