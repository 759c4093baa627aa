// Package postgres is the durable compliance store for audit entries. Entries
// are never deleted; retention is an operator concern outside the engine.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"warden/internal/audit"
	"warden/internal/domain"
)

type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the audit table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS audit_entries (
    id           BIGSERIAL PRIMARY KEY,
    request_id   TEXT        NOT NULL,
    resource     TEXT        NOT NULL,
    action_type  TEXT        NOT NULL,
    requested_by TEXT        NOT NULL,
    risk         INT         NOT NULL,
    risk_name    TEXT        NOT NULL,
    path         TEXT        NOT NULL,
    outcome      TEXT        NOT NULL,
    reason       TEXT        NOT NULL DEFAULT '',
    approval_id  TEXT        NOT NULL DEFAULT '',
    approver     TEXT        NOT NULL DEFAULT '',
    latency_ms   BIGINT      NOT NULL,
    recorded_at  TIMESTAMPTZ NOT NULL,
    request_json JSONB       NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_resource_time ON audit_entries (resource, recorded_at);
CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_entries (recorded_at);`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate audit table: %w", err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	requestJSON, err := json.Marshal(entry.Request)
	if err != nil {
		return fmt.Errorf("marshal action request: %w", err)
	}
	const q = `
INSERT INTO audit_entries
    (request_id, resource, action_type, requested_by, risk, risk_name, path,
     outcome, reason, approval_id, approver, latency_ms, recorded_at, request_json)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = s.db.ExecContext(ctx, q,
		entry.Request.ID, entry.Request.Target, entry.Request.Type.String(),
		entry.Request.RequestedBy, int(entry.Risk), entry.Risk.String(),
		string(entry.Path), string(entry.Outcome), string(entry.Reason),
		entry.ApprovalID, entry.Approver, entry.LatencyMS, entry.Timestamp,
		requestJSON,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) SetOutcome(ctx context.Context, requestID string, outcome domain.Outcome, latencyMS int64) error {
	const q = `UPDATE audit_entries SET outcome = $1, latency_ms = $2 WHERE request_id = $3`
	if _, err := s.db.ExecContext(ctx, q, string(outcome), latencyMS, requestID); err != nil {
		return fmt.Errorf("update audit outcome: %w", err)
	}
	return nil
}

func (s *Store) ListByResource(ctx context.Context, resource string, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT request_json, risk, path, outcome, reason, approval_id, approver, latency_ms, recorded_at
FROM audit_entries
WHERE resource = $1
ORDER BY recorded_at DESC
LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, resource, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e           audit.Entry
			requestJSON []byte
			risk        int
		)
		if err := rows.Scan(&requestJSON, &risk, &e.Path, &e.Outcome, &e.Reason,
			&e.ApprovalID, &e.Approver, &e.LatencyMS, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal(requestJSON, &e.Request); err != nil {
			return nil, fmt.Errorf("unmarshal action request: %w", err)
		}
		e.Risk = domain.RiskLevel(risk)
		e.RiskName = e.Risk.String()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) HighRiskCount(ctx context.Context, resource string, window time.Duration) (int, error) {
	const q = `
SELECT COUNT(*) FROM audit_entries
WHERE resource = $1 AND risk >= $2 AND recorded_at > $3`
	var count int
	err := s.db.QueryRowContext(ctx, q, resource, int(domain.RiskHigh), time.Now().Add(-window)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count high-risk entries: %w", err)
	}
	return count, nil
}

func (s *Store) DenialRatio(ctx context.Context, window time.Duration) (float64, error) {
	const q = `
SELECT COUNT(*) FILTER (WHERE path IN ('denied', 'expired', 'rate_limited', 'circuit_blocked')),
       COUNT(*)
FROM audit_entries
WHERE recorded_at > $1`
	var denied, total int
	err := s.db.QueryRowContext(ctx, q, time.Now().Add(-window)).Scan(&denied, &total)
	if err != nil {
		return 0, fmt.Errorf("denial ratio query: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(denied) / float64(total), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
