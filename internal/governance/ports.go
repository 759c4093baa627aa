package governance

import (
	"context"

	"warden/internal/approval"
	"warden/internal/domain"
)

// Notifier delivers pending approvals to the external human-approval channel.
// Dispatch is fire-and-forget from the facade's point of view; a notification
// failure does not alter the request's state (the approval simply pends until
// resolved or expired).
type Notifier interface {
	ApprovalNeeded(ctx context.Context, req approval.Request) error
}

// Executor performs the action against the external worker once, and only
// once, authorization has produced a terminal Execute decision.
type Executor interface {
	Execute(ctx context.Context, req domain.ActionRequest) error
}
