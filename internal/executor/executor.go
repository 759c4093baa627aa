// Package executor contains adapters for the outbound execution port. The
// worker processes themselves (restart/stop/log mechanics) are external; the
// engine only dispatches authorized actions to them.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"warden/internal/domain"
)

// LogExecutor records authorized actions to the structured log without
// touching any worker. Development and test default.
type LogExecutor struct {
	logger *slog.Logger
}

func NewLogExecutor(logger *slog.Logger) *LogExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogExecutor{logger: logger}
}

func (e *LogExecutor) Execute(ctx context.Context, req domain.ActionRequest) error {
	e.logger.InfoContext(ctx, "EXECUTE",
		"request_id", req.ID,
		"action", req.Type,
		"target", req.Target,
		"requested_by", req.RequestedBy,
	)
	return nil
}

// HTTPExecutor dispatches authorized actions to the worker-management
// endpoint.
type HTTPExecutor struct {
	url    string
	client *http.Client
}

func NewHTTPExecutor(url string) *HTTPExecutor {
	return &HTTPExecutor{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, req domain.ActionRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal action request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build execute request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("dispatch action: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("executor rejected action: status %d", resp.StatusCode)
	}
	return nil
}
