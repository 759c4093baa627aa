// Package governance is the single entry point the agent runtime calls. It
// composes risk classification, rate limiting, the approval workflow, the
// circuit breakers, and the audit log into one request -> decision operation,
// and is the only package exposed to external collaborators.
package governance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"warden/internal/approval"
	"warden/internal/audit"
	"warden/internal/circuit"
	"warden/internal/domain"
	"warden/internal/governance/metrics"
	"warden/internal/policy"
	"warden/internal/ratelimit"
	"warden/internal/risk"
)

// Service is the governance facade.
type Service struct {
	table      *policy.Table
	classifier *risk.Classifier
	limiter    *ratelimit.Limiter
	circuits   *circuit.Registry
	workflow   *approval.Workflow
	recorder   *audit.Recorder
	auditStore audit.Store
	notifier   Notifier
	executor   Executor
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer

	// reservations holds the rate slot taken at submission for each pending
	// approval, so resolution can commit or roll it back.
	mu           sync.Mutex
	reservations map[string]ratelimit.Reservation
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New wires the facade. The approval workflow is owned by the service because
// its resolution callback closes over the service's commit/rollback state.
func New(
	table *policy.Table,
	limiter *ratelimit.Limiter,
	circuits *circuit.Registry,
	recorder *audit.Recorder,
	auditStore audit.Store,
	notifier Notifier,
	executor Executor,
	opts ...Option,
) (*Service, error) {
	if table == nil {
		return nil, fmt.Errorf("policy table is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if circuits == nil {
		return nil, fmt.Errorf("circuit registry is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	if auditStore == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}

	s := &Service{
		table:        table,
		classifier:   risk.NewClassifier(table, circuits),
		limiter:      limiter,
		circuits:     circuits,
		recorder:     recorder,
		auditStore:   auditStore,
		notifier:     notifier,
		executor:     executor,
		logger:       slog.Default(),
		tracer:       otel.Tracer("warden/governance"),
		reservations: make(map[string]ratelimit.Reservation),
	}
	for _, opt := range opts {
		opt(s)
	}

	workflow, err := approval.New(table, s.handleResolution, approval.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("build approval workflow: %w", err)
	}
	s.workflow = workflow
	return s, nil
}

// Authorize decides whether the requested action may proceed. SAFE/LOW risk
// returns Execute synchronously after the circuit and rate checks; MEDIUM and
// above returns Pending immediately and the resolution is delivered through
// the approval channel, never by blocking the caller. The call itself does no
// network I/O.
func (s *Service) Authorize(ctx context.Context, req domain.ActionRequest) (domain.Decision, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "governance.authorize",
		trace.WithAttributes(
			attribute.String("action.type", req.Type.String()),
			attribute.String("action.target", req.Target),
		))
	defer span.End()
	defer func() { s.metrics.ObserveAuthorize(time.Since(start)) }()

	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now()
	}

	cls := s.classifier.Classify(req)
	span.SetAttributes(attribute.String("action.risk", cls.Level.String()))
	if cls.UnknownAction {
		s.logger.WarnContext(ctx, "unknown action type, failing closed to critical",
			"request_id", req.ID,
			"action", req.Type,
		)
	}

	// Kill switch first: a tripped circuit blocks everything but safe reads.
	if !s.circuits.Allow(req.Target, cls.Level, req.Type) {
		return s.deny(ctx, req, cls.Level, domain.PathCircuitBlocked, domain.ReasonCircuitOpen, "", "")
	}

	rate, err := s.limiter.CheckAndReserve(ctx, req)
	if err != nil {
		// Infrastructure failure in the limiter store: fail closed.
		s.logger.ErrorContext(ctx, "rate limiter unavailable, failing closed",
			"request_id", req.ID,
			"error", err,
		)
		return domain.Decision{Kind: domain.DecisionDenied, Risk: cls.Level, Reason: domain.ReasonStorageUnavailable}, err
	}
	if !rate.Allowed {
		return s.deny(ctx, req, cls.Level, domain.PathRateLimited, domain.ReasonRateLimitExceeded, "", "")
	}

	areq := s.workflow.Submit(req, cls.Level, cls.Restricted)

	if areq.State == approval.StateAutoApproved {
		// The decision is honored only if it can be recorded: append the
		// terminal entry before the executor ever runs.
		if err := s.recordDecision(ctx, req, cls.Level, domain.PathAutoApproved, "", areq.ID, ""); err != nil {
			s.limiter.Rollback(ctx, rate.Reservation)
			return domain.Decision{Kind: domain.DecisionDenied, Risk: cls.Level, Reason: domain.ReasonStorageUnavailable}, err
		}
		go s.execute(req, cls.Level)
		return domain.Decision{Kind: domain.DecisionExecute, Risk: cls.Level}, nil
	}

	s.mu.Lock()
	s.reservations[areq.ID] = rate.Reservation
	s.mu.Unlock()
	s.metrics.SetPendingApprovals(s.workflow.PendingCount())

	// Fire-and-forget: notification latency must not block the agent.
	go func(areq approval.Request) {
		if err := s.notifier.ApprovalNeeded(context.Background(), areq); err != nil {
			s.logger.Error("approval notification failed",
				"approval_id", areq.ID,
				"resource", areq.Action.Target,
				"error", err,
			)
		}
	}(areq)

	return domain.Decision{Kind: domain.DecisionPending, Risk: cls.Level, ApprovalID: areq.ID}, nil
}

// ResolveApproval applies a human decision to a pending approval. Resolving an
// already-terminal approval is a no-op and does not re-trigger execution.
func (s *Service) ResolveApproval(ctx context.Context, approvalID, approver string, approve bool) (approval.Request, error) {
	req, err := s.workflow.Resolve(approvalID, approver, approve)
	if err != nil {
		return req, err
	}
	s.logger.InfoContext(ctx, "approval decision applied",
		"approval_id", approvalID,
		"approver", approver,
		"approved", approve,
	)
	return req, nil
}

// ResetCircuit closes the breaker for a resource (or the global breaker when
// resource is empty). Operator-only; callers gate it with elevated privilege.
func (s *Service) ResetCircuit(ctx context.Context, resource, operator string) {
	s.circuits.Reset(resource)
	s.logger.InfoContext(ctx, "circuit reset",
		"resource", resource,
		"operator", operator,
	)
}

// Aggregates is the read-side feed for external monitoring. Informational
// only: the circuit breaker remains the sole component that converts history
// into a blocking decision.
type Aggregates struct {
	Resource          string  `json:"resource"`
	HighRiskLastHour  int     `json:"high_risk_last_hour"`
	DenialRatioLastHr float64 `json:"denial_ratio_last_hour"`
}

func (s *Service) AuditAggregates(ctx context.Context, resource string) (Aggregates, error) {
	high, err := s.auditStore.HighRiskCount(ctx, resource, time.Hour)
	if err != nil {
		return Aggregates{}, fmt.Errorf("high-risk count: %w", err)
	}
	ratio, err := s.auditStore.DenialRatio(ctx, time.Hour)
	if err != nil {
		return Aggregates{}, fmt.Errorf("denial ratio: %w", err)
	}
	return Aggregates{Resource: resource, HighRiskLastHour: high, DenialRatioLastHr: ratio}, nil
}

// AuditTrail lists recent entries for a resource, newest first.
func (s *Service) AuditTrail(ctx context.Context, resource string, limit int) ([]audit.Entry, error) {
	return s.auditStore.ListByResource(ctx, resource, limit)
}

// handleResolution is the approval workflow's terminal-state callback. It runs
// on whichever goroutine won the claim (HTTP handler or expiry timer).
func (s *Service) handleResolution(res approval.Resolution) {
	ctx := context.Background()
	req := res.Request
	reservation := s.takeReservation(req.ID)
	s.metrics.SetPendingApprovals(s.workflow.PendingCount())

	switch req.State {
	case approval.StateApproved:
		// The circuit may have tripped while the request pended; re-check
		// before execution so nothing slips through the approval window.
		if !s.circuits.Allow(req.Action.Target, req.Risk, req.Action.Type) {
			s.limiter.Rollback(ctx, reservation)
			if err := s.recordDecision(ctx, req.Action, req.Risk, domain.PathCircuitBlocked, domain.ReasonCircuitOpen, req.ID, req.DecidedBy); err != nil {
				s.logger.Error("audit write failed for circuit-blocked approval", "approval_id", req.ID, "error", err)
			}
			return
		}
		if err := s.recordDecision(ctx, req.Action, req.Risk, domain.PathApproved, "", req.ID, req.DecidedBy); err != nil {
			// Fail closed: an approval that cannot be audited is not executed.
			s.limiter.Rollback(ctx, reservation)
			s.logger.Error("CRITICAL: approved action not executed, audit unavailable",
				"approval_id", req.ID,
				"request_id", req.Action.ID,
				"error", err,
			)
			return
		}
		go s.execute(req.Action, req.Risk)

	case approval.StateDenied:
		s.limiter.Rollback(ctx, reservation)
		if err := s.recordDecision(ctx, req.Action, req.Risk, domain.PathDenied, domain.ReasonApprovalDenied, req.ID, req.DecidedBy); err != nil {
			s.logger.Error("audit write failed for denial", "approval_id", req.ID, "error", err)
		}
		s.reportOutcome(req.Action.Target, req.Risk, true)

	case approval.StateExpired:
		s.limiter.Rollback(ctx, reservation)
		if err := s.recordDecision(ctx, req.Action, req.Risk, domain.PathExpired, domain.ReasonApprovalExpired, req.ID, ""); err != nil {
			s.logger.Error("audit write failed for expiry", "approval_id", req.ID, "error", err)
		}
		s.reportOutcome(req.Action.Target, req.Risk, true)
	}
}

// execute invokes the external executor and feeds the outcome back into the
// audit trail and the circuit breakers. Runs detached from the caller.
func (s *Service) execute(req domain.ActionRequest, level domain.RiskLevel) {
	ctx := context.Background()
	start := time.Now()
	err := s.executor.Execute(ctx, req)
	latency := time.Since(start)

	outcome := domain.OutcomeSuccess
	if err != nil {
		outcome = domain.OutcomeFailure
		s.logger.Error("action execution failed",
			"request_id", req.ID,
			"resource", req.Target,
			"error", err,
		)
	}
	s.metrics.ObserveExecution(string(outcome))
	s.recorder.RecordOutcome(ctx, req.ID, outcome, latency.Milliseconds())
	s.reportOutcome(req.Target, level, err != nil)
}

func (s *Service) reportOutcome(resource string, level domain.RiskLevel, failed bool) {
	if s.circuits.ReportOutcome(resource, level, failed) {
		scope := resource
		if s.circuits.Tripped("") {
			scope = "global"
		}
		s.metrics.ObserveCircuitTrip(scope)
		s.logger.Warn("circuit tripped",
			"resource", resource,
			"scope", scope,
		)
	}
}

// deny records a terminal denial and returns the matching decision. Denials
// are normal negative results; the error return is reserved for audit
// persistence failure.
func (s *Service) deny(ctx context.Context, req domain.ActionRequest, level domain.RiskLevel, path domain.DecisionPath, reason domain.DenialReason, approvalID, approver string) (domain.Decision, error) {
	if err := s.recordDecision(ctx, req, level, path, reason, approvalID, approver); err != nil {
		return domain.Decision{Kind: domain.DecisionDenied, Risk: level, Reason: domain.ReasonStorageUnavailable}, err
	}
	return domain.Decision{Kind: domain.DecisionDenied, Risk: level, Reason: reason}, nil
}

func (s *Service) recordDecision(ctx context.Context, req domain.ActionRequest, level domain.RiskLevel, path domain.DecisionPath, reason domain.DenialReason, approvalID, approver string) error {
	outcome := domain.OutcomeNotExecuted
	entry := audit.Entry{
		Request:    req,
		Risk:       level,
		Path:       path,
		Outcome:    outcome,
		Reason:     reason,
		ApprovalID: approvalID,
		Approver:   approver,
		LatencyMS:  time.Since(req.SubmittedAt).Milliseconds(),
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		return err
	}
	s.metrics.ObserveDecision(string(path), level.String())
	return nil
}

func (s *Service) takeReservation(approvalID string) ratelimit.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.reservations[approvalID]
	delete(s.reservations, approvalID)
	return res
}
