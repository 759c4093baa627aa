// Package notify contains adapters for the outbound approval-notification
// port. The real approval channel (chat bot, dashboard, pager) is an external
// collaborator; the engine only needs a way to hand it pending approvals.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"warden/internal/approval"
)

// LogNotifier writes pending approvals to the structured log. Development and
// test default.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) ApprovalNeeded(ctx context.Context, req approval.Request) error {
	n.logger.InfoContext(ctx, "APPROVAL NEEDED",
		"approval_id", req.ID,
		"risk", req.Risk.String(),
		"action", req.Action.Type,
		"target", req.Action.Target,
		"requested_by", req.Action.RequestedBy,
		"expires_at", req.ExpiresAt,
	)
	return nil
}

// WebhookNotifier POSTs pending approvals to the approval channel's endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// payload is what approvers see: always the risk level, target, and
// requester.
type payload struct {
	ApprovalID  string    `json:"approval_id"`
	Risk        string    `json:"risk"`
	ActionType  string    `json:"action_type"`
	Target      string    `json:"target"`
	RequestedBy string    `json:"requested_by"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

func (n *WebhookNotifier) ApprovalNeeded(ctx context.Context, req approval.Request) error {
	body, err := json.Marshal(payload{
		ApprovalID:  req.ID,
		Risk:        req.Risk.String(),
		ActionType:  req.Action.Type.String(),
		Target:      req.Action.Target,
		RequestedBy: req.Action.RequestedBy,
		CreatedAt:   req.CreatedAt,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal approval notification: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build approval notification: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send approval notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("approval notification rejected: status %d", resp.StatusCode)
	}
	return nil
}
