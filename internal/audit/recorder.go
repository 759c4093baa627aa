package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"warden/internal/domain"
)

// Recorder writes terminal decisions to the audit store with fail-closed
// semantics: the append is synchronous and an error means the calling
// operation MUST convert its decision to a denial. Executing an un-audited
// action is never acceptable.
//
// Fan-out to the monitoring stream is fire-and-forget and best-effort; only
// the durable append is on the critical path.
type Recorder struct {
	store  Store
	logger *slog.Logger
	feed   chan<- Entry
}

type RecorderOption func(*Recorder)

func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithFeed attaches the channel drained by the stream worker. A full feed
// drops the entry rather than blocking the decision path.
func WithFeed(feed chan<- Entry) RecorderOption {
	return func(r *Recorder) {
		r.feed = feed
	}
}

func NewRecorder(store Store, opts ...RecorderOption) (*Recorder, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	r := &Recorder{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Record appends one terminal entry. On persistence failure it returns an
// error wrapping domain.ErrStorageUnavailable so the caller can fail closed.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.RiskName = entry.Risk.String()

	if err := r.store.Append(ctx, entry); err != nil {
		r.logger.ErrorContext(ctx, "CRITICAL: audit append failed",
			"request_id", entry.Request.ID,
			"resource", entry.Request.Target,
			"path", entry.Path,
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	if r.feed != nil {
		select {
		case r.feed <- entry:
		default:
			r.logger.WarnContext(ctx, "audit feed full, entry not streamed",
				"request_id", entry.Request.ID,
			)
		}
	}
	return nil
}

// RecordOutcome feeds the execution result back onto the request's terminal
// entry. Best-effort: the action already ran, so a failure here is logged but
// cannot fail anything closed.
func (r *Recorder) RecordOutcome(ctx context.Context, requestID string, outcome domain.Outcome, latencyMS int64) {
	if err := r.store.SetOutcome(ctx, requestID, outcome, latencyMS); err != nil {
		r.logger.ErrorContext(ctx, "audit outcome update failed",
			"request_id", requestID,
			"outcome", outcome,
			"error", err,
		)
	}
}
