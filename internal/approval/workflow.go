// Package approval runs the state machine that governs MEDIUM+ risk actions
// from submission to terminal disposition. The hard requirement is the race
// between a human decision and the expiry timer: exactly one of them may claim
// the terminal state, and a cancelled timer must never fire a stale Expired
// transition afterwards.
package approval

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"warden/internal/domain"
)

// ErrAlreadyResolved marks an idempotent resolve of a terminal request. The
// caller gets the existing terminal request back and must not re-trigger
// execution.
var ErrAlreadyResolved = errors.New("approval already resolved")

// TimeoutSource resolves the risk-dependent expiry. Satisfied by
// *policy.Table.
type TimeoutSource interface {
	ApprovalTimeout(level domain.RiskLevel) (time.Duration, bool)
}

// pending pairs a request with its cancellable timer. The per-request mutex is
// the claim scope: whoever flips terminal under it wins, everyone else no-ops.
type pending struct {
	mu       sync.Mutex
	req      Request
	timer    *time.Timer
	terminal bool
}

// Workflow owns all in-flight approval requests.
type Workflow struct {
	mu       sync.Mutex
	inflight map[string]*pending

	timeouts  TimeoutSource
	onResolve func(Resolution)
	logger    *slog.Logger
}

type Option func(*Workflow)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

// New builds a workflow. onResolve is invoked once per pending request, on
// whichever goroutine claimed the terminal state; it must not block for long.
func New(timeouts TimeoutSource, onResolve func(Resolution), opts ...Option) (*Workflow, error) {
	if timeouts == nil {
		return nil, fmt.Errorf("timeout source is required")
	}
	if onResolve == nil {
		return nil, fmt.Errorf("resolution handler is required")
	}
	w := &Workflow{
		inflight:  make(map[string]*pending),
		timeouts:  timeouts,
		onResolve: onResolve,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Submit routes a classified request. SAFE/LOW auto-approve unless the target
// is restricted; restricted resources always pend, even when classified
// SAFE/LOW by mistake. The returned request is a snapshot.
func (w *Workflow) Submit(action domain.ActionRequest, risk domain.RiskLevel, restricted bool) Request {
	now := time.Now()
	req := Request{
		ID:        uuid.NewString(),
		Action:    action,
		Risk:      risk,
		State:     StateSubmitted,
		CreatedAt: now,
	}

	if !risk.RequiresApproval() && !restricted {
		req.State = StateAutoApproved
		req.DecidedAt = now
		return req
	}

	req.State = StatePendingApproval
	p := &pending{req: req}

	if timeout, hasExpiry := w.timeouts.ApprovalTimeout(risk); hasExpiry {
		p.req.ExpiresAt = now.Add(timeout)
		p.timer = time.AfterFunc(timeout, func() { w.expire(p) })
	}

	w.mu.Lock()
	w.inflight[req.ID] = p
	w.mu.Unlock()

	w.logger.Info("approval pending",
		"approval_id", req.ID,
		"request_id", action.ID,
		"resource", action.Target,
		"risk", risk.String(),
		"expires_at", p.req.ExpiresAt,
	)
	return p.snapshot()
}

// Resolve applies a human decision. Resolving a request that already reached
// a terminal state (including Expired) returns the terminal snapshot with
// ErrAlreadyResolved and has no other effect.
func (w *Workflow) Resolve(approvalID, approver string, approve bool) (Request, error) {
	p := w.lookup(approvalID)
	if p == nil {
		return Request{}, domain.ErrApprovalNotFound
	}

	state := StateDenied
	if approve {
		state = StateApproved
	}

	req, claimed := p.claim(state, approver)
	if !claimed {
		return req, ErrAlreadyResolved
	}

	w.remove(approvalID)
	w.logger.Info("approval resolved",
		"approval_id", approvalID,
		"state", req.State,
		"decided_by", approver,
	)
	w.onResolve(Resolution{Request: req})
	return req, nil
}

// expire is the timer path. If a human decision claimed the state first this
// is a no-op; the claim below is the same atomic operation Resolve uses, so
// a decision arriving at the exact expiry instant yields exactly one terminal
// state.
func (w *Workflow) expire(p *pending) {
	req, claimed := p.claim(StateExpired, "")
	if !claimed {
		return
	}

	w.remove(req.ID)
	w.logger.Info("approval expired",
		"approval_id", req.ID,
		"request_id", req.Action.ID,
		"resource", req.Action.Target,
	)
	w.onResolve(Resolution{Request: req})
}

// Get returns a snapshot of an in-flight request.
func (w *Workflow) Get(approvalID string) (Request, bool) {
	p := w.lookup(approvalID)
	if p == nil {
		return Request{}, false
	}
	return p.snapshot(), true
}

// PendingCount reports the number of in-flight requests.
func (w *Workflow) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inflight)
}

func (w *Workflow) lookup(approvalID string) *pending {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inflight[approvalID]
}

func (w *Workflow) remove(approvalID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, approvalID)
}

// claim atomically takes the terminal state. Exactly one caller wins; the
// timer is stopped under the same lock so it cannot fire after a decision.
func (p *pending) claim(state State, decidedBy string) (Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminal {
		return p.req, false
	}
	p.terminal = true
	p.req.State = state
	p.req.DecidedBy = decidedBy
	p.req.DecidedAt = time.Now()
	if p.timer != nil {
		p.timer.Stop()
	}
	return p.req, true
}

func (p *pending) snapshot() Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.req
}
