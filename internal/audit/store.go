package audit

import (
	"context"
	"time"

	"warden/internal/domain"
)

// Store persists audit entries and answers the engine's only query need:
// counts over the trailing window. Swap in-memory, Postgres, or both without
// touching the recorder.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByResource(ctx context.Context, resource string, limit int) ([]Entry, error)

	// SetOutcome updates the execution outcome on the terminal entry for
	// requestID once the executor reports back. The entry stays the request's
	// single terminal record; only its outcome and latency change.
	SetOutcome(ctx context.Context, requestID string, outcome domain.Outcome, latencyMS int64) error

	// HighRiskCount counts HIGH/CRITICAL entries for a resource in the
	// trailing window.
	HighRiskCount(ctx context.Context, resource string, window time.Duration) (int, error)

	// DenialRatio returns denied+expired over total in the trailing window,
	// across all resources. Zero total yields ratio 0.
	DenialRatio(ctx context.Context, window time.Duration) (float64, error)
}
