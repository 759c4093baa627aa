// Package handler wires the governance endpoints onto the HTTP router. It is
// a thin transport layer; authorization semantics live in the governance
// service.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"warden/internal/approval"
	"warden/internal/domain"
	"warden/internal/governance"
	"warden/internal/platform/middleware"
)

type Handler struct {
	service  *governance.Service
	logger   *slog.Logger
	operator func(http.Handler) http.Handler
}

// New constructs the governance handler. operator gates the operator-only
// routes (circuit reset).
func New(service *governance.Service, logger *slog.Logger, operator func(http.Handler) http.Handler) *Handler {
	return &Handler{service: service, logger: logger, operator: operator}
}

// Register mounts governance endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/actions/authorize", h.HandleAuthorize)
	r.Post("/approvals/{approvalID}/resolve", h.HandleResolve)
	r.Get("/audit/aggregates", h.HandleAggregates)
	r.Get("/audit/trail", h.HandleTrail)
	r.Group(func(r chi.Router) {
		r.Use(h.operator)
		r.Post("/circuits/{resource}/reset", h.HandleResetCircuit)
	})
}

// HandleAuthorize handles POST /actions/authorize.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	action, err := req.Validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	decision, err := h.service.Authorize(ctx, action)
	if err != nil {
		// The decision already failed closed; surface the infrastructure
		// failure to the operator via logs, and the denial to the agent.
		h.logger.ErrorContext(ctx, "authorize failed closed",
			"request_id", action.ID,
			"error", err,
		)
		writeJSON(w, http.StatusServiceUnavailable, decisionResponse(decision))
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse(decision))
}

// HandleResolve handles POST /approvals/{approvalID}/resolve.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	approvalID := chi.URLParam(r, "approvalID")

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	approve, err := req.Validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resolved, err := h.service.ResolveApproval(ctx, approvalID, req.Approver, approve)
	switch {
	case errors.Is(err, domain.ErrApprovalNotFound):
		writeError(w, http.StatusNotFound, "approval not found")
		return
	case errors.Is(err, approval.ErrAlreadyResolved):
		// Idempotent: report the existing terminal state, change nothing.
		writeJSON(w, http.StatusOK, resolveResponse(resolved, false))
		return
	case err != nil:
		h.logger.ErrorContext(ctx, "resolve failed", "approval_id", approvalID, "error", err)
		writeError(w, http.StatusInternalServerError, "resolve failed")
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse(resolved, true))
}

// HandleResetCircuit handles POST /circuits/{resource}/reset. Operator-only.
func (h *Handler) HandleResetCircuit(w http.ResponseWriter, r *http.Request) {
	resource := chi.URLParam(r, "resource")
	h.service.ResetCircuit(r.Context(), resource, middleware.OperatorFrom(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"resource": resource, "status": "reset"})
}

// HandleAggregates handles GET /audit/aggregates?resource=.
func (h *Handler) HandleAggregates(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		writeError(w, http.StatusBadRequest, "resource query parameter is required")
		return
	}
	agg, err := h.service.AuditAggregates(r.Context(), resource)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "aggregate query failed", "resource", resource, "error", err)
		writeError(w, http.StatusInternalServerError, "aggregate query failed")
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// HandleTrail handles GET /audit/trail?resource=&limit=.
func (h *Handler) HandleTrail(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		writeError(w, http.StatusBadRequest, "resource query parameter is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.AuditTrail(r.Context(), resource, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "trail query failed", "resource", resource, "error", err)
		writeError(w, http.StatusInternalServerError, "trail query failed")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
