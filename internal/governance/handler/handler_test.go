package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"warden/internal/approval"
	"warden/internal/audit"
	auditmem "warden/internal/audit/store/memory"
	"warden/internal/circuit"
	"warden/internal/domain"
	"warden/internal/governance"
	"warden/internal/platform/middleware"
	"warden/internal/policy"
	"warden/internal/ratelimit"
	ratemem "warden/internal/ratelimit/store/memory"
)

const testSigningKey = "test-signing-key"

type noopNotifier struct{}

func (noopNotifier) ApprovalNeeded(context.Context, approval.Request) error { return nil }

type noopExecutor struct{}

func (noopExecutor) Execute(context.Context, domain.ActionRequest) error { return nil }

type HandlerSuite struct {
	suite.Suite
	router  chi.Router
	service *governance.Service
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	table := policy.Default()
	store := auditmem.NewInMemoryStore()
	recorder, err := audit.NewRecorder(store)
	s.Require().NoError(err)
	limiter, err := ratelimit.New(ratemem.NewInMemoryWindowStore(), table)
	s.Require().NoError(err)

	s.service, err = governance.New(
		table,
		limiter,
		circuit.NewRegistry(table.BreakerThreshold()),
		recorder,
		store,
		noopNotifier{},
		noopExecutor{},
	)
	s.Require().NoError(err)

	logger := slog.New(slog.DiscardHandler)
	h := New(s.service, logger, middleware.RequireOperator(testSigningKey, logger))
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(v))
}

func (s *HandlerSuite) operatorToken(role string) string {
	claims := middleware.OperatorClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "op-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	s.Require().NoError(err)
	return "Bearer " + token
}

func (s *HandlerSuite) TestAuthorize() {
	s.Run("safe action executes", func() {
		rec := s.do(http.MethodPost, "/actions/authorize", AuthorizeRequest{
			ActionType:  "query",
			Target:      "groq-llm",
			RequestedBy: "agent-7",
		}, nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp DecisionResponse
		s.decode(rec, &resp)
		s.Equal("execute", resp.Decision)
		s.Equal("safe", resp.Risk)
		s.Empty(resp.ApprovalID)
	})

	s.Run("high risk action pends", func() {
		rec := s.do(http.MethodPost, "/actions/authorize", AuthorizeRequest{
			ActionType:  "restart",
			Target:      "pg-mcp",
			RequestedBy: "agent-7",
		}, nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp DecisionResponse
		s.decode(rec, &resp)
		s.Equal("pending", resp.Decision)
		s.Equal("high", resp.Risk)
		s.NotEmpty(resp.ApprovalID)
	})

	s.Run("missing fields rejected", func() {
		rec := s.do(http.MethodPost, "/actions/authorize", AuthorizeRequest{
			ActionType: "query",
		}, nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("malformed body rejected", func() {
		req := httptest.NewRequest(http.MethodPost, "/actions/authorize", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown action type is accepted and fails closed", func() {
		rec := s.do(http.MethodPost, "/actions/authorize", AuthorizeRequest{
			ActionType:  "deploy_to_prod",
			Target:      "pg-mcp",
			RequestedBy: "agent-7",
		}, nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp DecisionResponse
		s.decode(rec, &resp)
		s.Equal("pending", resp.Decision)
		s.Equal("critical", resp.Risk)
	})
}

func (s *HandlerSuite) TestResolve() {
	pendingApproval := func() string {
		rec := s.do(http.MethodPost, "/actions/authorize", AuthorizeRequest{
			ActionType:  "write",
			Target:      "pg-mcp",
			RequestedBy: "agent-7",
		}, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var resp DecisionResponse
		s.decode(rec, &resp)
		s.Require().NotEmpty(resp.ApprovalID)
		return resp.ApprovalID
	}

	s.Run("approve applies", func() {
		id := pendingApproval()
		rec := s.do(http.MethodPost, "/approvals/"+id+"/resolve", ResolveRequest{
			Approver: "alice",
			Decision: "approve",
		}, nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp ResolveResponse
		s.decode(rec, &resp)
		s.True(resp.Applied)
		s.Equal("approved", resp.State)
		s.Equal("alice", resp.DecidedBy)
	})

	s.Run("unknown approval is 404", func() {
		rec := s.do(http.MethodPost, "/approvals/nope/resolve", ResolveRequest{
			Approver: "alice",
			Decision: "deny",
		}, nil)
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("invalid decision verb rejected", func() {
		id := pendingApproval()
		rec := s.do(http.MethodPost, "/approvals/"+id+"/resolve", ResolveRequest{
			Approver: "alice",
			Decision: "maybe",
		}, nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestResetCircuit() {
	s.Run("requires a token", func() {
		rec := s.do(http.MethodPost, "/circuits/pg-mcp/reset", nil, nil)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("requires the operator role", func() {
		rec := s.do(http.MethodPost, "/circuits/pg-mcp/reset", nil, map[string]string{
			"Authorization": s.operatorToken("viewer"),
		})
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("operator token resets", func() {
		rec := s.do(http.MethodPost, "/circuits/pg-mcp/reset", nil, map[string]string{
			"Authorization": s.operatorToken("operator"),
		})
		s.Equal(http.StatusOK, rec.Code)
	})
}

func (s *HandlerSuite) TestAggregates() {
	s.Run("resource parameter required", func() {
		rec := s.do(http.MethodGet, "/audit/aggregates", nil, nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("returns the trailing-hour view", func() {
		s.do(http.MethodPost, "/actions/authorize", AuthorizeRequest{
			ActionType:  "query",
			Target:      "groq-llm",
			RequestedBy: "agent-7",
		}, nil)

		rec := s.do(http.MethodGet, "/audit/aggregates?resource=groq-llm", nil, nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp governance.Aggregates
		s.decode(rec, &resp)
		s.Equal("groq-llm", resp.Resource)
	})
}

func (s *HandlerSuite) TestTrail() {
	s.do(http.MethodPost, "/actions/authorize", AuthorizeRequest{
		ActionType:  "query",
		Target:      "groq-llm",
		RequestedBy: "agent-7",
	}, nil)

	rec := s.do(http.MethodGet, "/audit/trail?resource=groq-llm&limit=5", nil, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var entries []audit.Entry
	s.decode(rec, &entries)
	s.Require().Len(entries, 1)
	s.Equal("groq-llm", entries[0].Request.Target)
}
