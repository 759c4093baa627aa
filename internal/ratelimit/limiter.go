// Package ratelimit enforces the per-resource sliding-window ceiling on
// governed actions. A request reserves a slot before approval and the
// reservation is committed once authorization proceeds end-to-end, or rolled
// back when a later stage denies it, so denied requests never starve approved
// ones out of the window.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"warden/internal/domain"
)

// Window is the rolling period the ceiling applies to.
const Window = time.Hour

// Reservation identifies one provisional slot so it can be rolled back.
type Reservation struct {
	Key string
	ID  string
}

// Result reports the outcome of a reserve attempt.
type Result struct {
	Allowed     bool
	Remaining   int
	Limit       int
	Reservation Reservation
}

// WindowStore is the sliding-window storage contract. The check-and-reserve
// sequence must be linearizable per key with respect to concurrent callers.
type WindowStore interface {
	// Reserve checks the ceiling for key and, if under it, records a
	// provisional slot identified by reservationID.
	Reserve(ctx context.Context, key, reservationID string, limit int, window time.Duration) (*Result, error)
	// Release removes a previously reserved slot. Releasing an unknown or
	// already-pruned reservation is a no-op.
	Release(ctx context.Context, key, reservationID string) error
	// Count returns the number of live slots in the key's window.
	Count(ctx context.Context, key string) (int, error)
}

// CeilingSource resolves the hourly ceiling per resource. Satisfied by
// *policy.Table.
type CeilingSource interface {
	Ceiling(resource string) int
}

// Limiter composes the window store with the policy ceilings.
type Limiter struct {
	store    WindowStore
	ceilings CeilingSource
	logger   *slog.Logger
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func New(store WindowStore, ceilings CeilingSource, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("window store is required")
	}
	if ceilings == nil {
		return nil, fmt.Errorf("ceiling source is required")
	}
	l := &Limiter{store: store, ceilings: ceilings, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func key(resource string, action domain.ActionType) string {
	return resource + ":" + action.String()
}

// CheckAndReserve provisionally takes a slot for the request. The reservation
// ID is the request ID so commit/rollback pair up with the originating
// request.
func (l *Limiter) CheckAndReserve(ctx context.Context, req domain.ActionRequest) (*Result, error) {
	limit := l.ceilings.Ceiling(req.Target)
	result, err := l.store.Reserve(ctx, key(req.Target, req.Type), req.ID, limit, Window)
	if err != nil {
		return nil, fmt.Errorf("reserve rate slot: %w", err)
	}
	if !result.Allowed {
		l.logger.InfoContext(ctx, "rate ceiling reached",
			"resource", req.Target,
			"action", req.Type,
			"limit", limit,
		)
	}
	return result, nil
}

// Rollback releases the slot taken by CheckAndReserve after a downstream
// denial. Commit is implicit: a reservation that is never rolled back stays in
// the window until it ages out.
func (l *Limiter) Rollback(ctx context.Context, res Reservation) {
	if res.Key == "" {
		return
	}
	if err := l.store.Release(ctx, res.Key, res.ID); err != nil {
		// The slot will age out of the window on its own; log and move on.
		l.logger.WarnContext(ctx, "rate slot release failed",
			"key", res.Key,
			"reservation", res.ID,
			"error", err,
		)
	}
}

// Count exposes the live slot count for a resource/action pair.
func (l *Limiter) Count(ctx context.Context, resource string, action domain.ActionType) (int, error) {
	return l.store.Count(ctx, key(resource, action))
}
