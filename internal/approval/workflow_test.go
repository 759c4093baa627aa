package approval

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"warden/internal/domain"
)

// stubTimeouts expires HIGH and CRITICAL almost immediately so timer paths
// are testable without real waiting.
type stubTimeouts struct {
	high     time.Duration
	critical time.Duration
}

func (s stubTimeouts) ApprovalTimeout(level domain.RiskLevel) (time.Duration, bool) {
	switch level {
	case domain.RiskHigh:
		return s.high, true
	case domain.RiskCritical:
		return s.critical, true
	default:
		return 0, false
	}
}

type WorkflowSuite struct {
	suite.Suite
	mu          sync.Mutex
	resolutions []Resolution
	workflow    *Workflow
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) SetupTest() {
	s.resolutions = nil
	var err error
	s.workflow, err = New(
		stubTimeouts{high: 30 * time.Millisecond, critical: 30 * time.Millisecond},
		func(res Resolution) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.resolutions = append(s.resolutions, res)
		},
	)
	s.Require().NoError(err)
}

func (s *WorkflowSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *WorkflowSuite) resolved() []Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Resolution{}, s.resolutions...)
}

func action(target string) domain.ActionRequest {
	return domain.ActionRequest{ID: "req-1", Type: domain.ActionRestart, Target: target, RequestedBy: "agent"}
}

func (s *WorkflowSuite) TestNew() {
	s.Run("nil timeout source rejected", func() {
		_, err := New(nil, func(Resolution) {})
		s.Error(err)
	})
	s.Run("nil resolution handler rejected", func() {
		_, err := New(stubTimeouts{}, nil)
		s.Error(err)
	})
}

func (s *WorkflowSuite) TestSubmit() {
	s.Run("safe risk auto-approves without pending", func() {
		req := s.workflow.Submit(action("groq-llm"), domain.RiskSafe, false)
		s.Equal(StateAutoApproved, req.State)
		s.Equal(0, s.workflow.PendingCount())
		s.Empty(s.resolved())
	})

	s.Run("restricted resource pends even at safe risk", func() {
		req := s.workflow.Submit(action("kiro-tools"), domain.RiskSafe, true)
		s.Equal(StatePendingApproval, req.State)
		s.Equal(1, s.workflow.PendingCount())
	})

	s.Run("medium risk pends without expiry", func() {
		req := s.workflow.Submit(action("pg-mcp"), domain.RiskMedium, false)
		s.Equal(StatePendingApproval, req.State)
		s.True(req.ExpiresAt.IsZero())
	})

	s.Run("critical risk pends with expiry", func() {
		req := s.workflow.Submit(action("pg-mcp"), domain.RiskCritical, false)
		s.Equal(StatePendingApproval, req.State)
		s.False(req.ExpiresAt.IsZero())
	})
}

func (s *WorkflowSuite) TestResolve() {
	s.Run("approve transitions to approved", func() {
		pending := s.workflow.Submit(action("pg-mcp"), domain.RiskMedium, false)

		req, err := s.workflow.Resolve(pending.ID, "alice", true)
		s.Require().NoError(err)
		s.Equal(StateApproved, req.State)
		s.Equal("alice", req.DecidedBy)
		s.Equal(0, s.workflow.PendingCount())

		resolutions := s.resolved()
		s.Require().Len(resolutions, 1)
		s.Equal(StateApproved, resolutions[0].Request.State)
	})

	s.Run("deny transitions to denied", func() {
		pending := s.workflow.Submit(action("pg-mcp"), domain.RiskMedium, false)

		req, err := s.workflow.Resolve(pending.ID, "bob", false)
		s.Require().NoError(err)
		s.Equal(StateDenied, req.State)
	})

	s.Run("unknown approval id rejected", func() {
		_, err := s.workflow.Resolve("missing", "alice", true)
		s.ErrorIs(err, domain.ErrApprovalNotFound)
	})

	s.Run("second resolve is an idempotent no-op", func() {
		pending := s.workflow.Submit(action("pg-mcp"), domain.RiskMedium, false)

		first, err := s.workflow.Resolve(pending.ID, "alice", true)
		s.Require().NoError(err)

		// The request left the in-flight map on its terminal transition.
		_, err = s.workflow.Resolve(pending.ID, "mallory", false)
		s.ErrorIs(err, domain.ErrApprovalNotFound)
		s.Equal(StateApproved, first.State)
		s.Len(s.resolved(), 1)
	})
}

func (s *WorkflowSuite) TestExpiry() {
	s.Run("unanswered critical approval expires", func() {
		pending := s.workflow.Submit(action("kiro-tools"), domain.RiskCritical, true)

		s.Require().Eventually(func() bool {
			return len(s.resolved()) == 1
		}, time.Second, 5*time.Millisecond)

		resolutions := s.resolved()
		s.Equal(StateExpired, resolutions[0].Request.State)
		s.Equal(pending.ID, resolutions[0].Request.ID)
		s.Empty(resolutions[0].Request.DecidedBy)
		s.Equal(0, s.workflow.PendingCount())
	})

	s.Run("human decision cancels the timer", func() {
		pending := s.workflow.Submit(action("pg-mcp"), domain.RiskHigh, false)
		_, err := s.workflow.Resolve(pending.ID, "alice", true)
		s.Require().NoError(err)

		// Wait past the expiry; no stale Expired transition may appear.
		time.Sleep(60 * time.Millisecond)
		resolutions := s.resolved()
		s.Require().Len(resolutions, 1)
		s.Equal(StateApproved, resolutions[0].Request.State)
	})

	s.Run("medium risk never expires", func() {
		s.workflow.Submit(action("pg-mcp"), domain.RiskMedium, false)
		time.Sleep(60 * time.Millisecond)
		s.Empty(s.resolved())
		s.Equal(1, s.workflow.PendingCount())
	})
}

// TestDecisionTimerRace drives a human decision into the exact expiry window
// and requires exactly one terminal state per request, never both.
func TestDecisionTimerRace(t *testing.T) {
	const rounds = 50

	for range rounds {
		var terminals atomic.Int32
		workflow, err := New(
			stubTimeouts{critical: time.Millisecond, high: time.Millisecond},
			func(Resolution) { terminals.Add(1) },
		)
		if err != nil {
			t.Fatal(err)
		}

		pending := workflow.Submit(
			domain.ActionRequest{ID: "race", Type: domain.ActionStop, Target: "pg-mcp"},
			domain.RiskCritical, false,
		)

		// Land the decision as close to the timer as we can.
		time.Sleep(time.Millisecond)
		_, err = workflow.Resolve(pending.ID, "alice", true)
		if err != nil && !errors.Is(err, domain.ErrApprovalNotFound) && !errors.Is(err, ErrAlreadyResolved) {
			t.Fatalf("unexpected resolve error: %v", err)
		}

		// Let any stale timer fire.
		time.Sleep(5 * time.Millisecond)
		if got := terminals.Load(); got != 1 {
			t.Fatalf("expected exactly one terminal transition, got %d", got)
		}
	}
}
