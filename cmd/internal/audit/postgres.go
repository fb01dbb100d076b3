package audit

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the audit table. It is idempotent.
const Schema = `
CREATE SCHEMA IF NOT EXISTS huddle;
CREATE TABLE IF NOT EXISTS huddle.audit_log (
	id           BIGSERIAL PRIMARY KEY,
	action       TEXT NOT NULL,
	session_code TEXT,
	origin       TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	meta         JSONB
);
CREATE INDEX IF NOT EXISTS audit_log_action_created_idx ON huddle.audit_log (action, created_at);
`

// Execer is the subset of *pgxpool.Pool the sink needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink writes records to huddle.audit_log.
type PostgresSink struct {
	db Execer
}

// NewPostgresSink constructs a sink over db.
func NewPostgresSink(db Execer) *PostgresSink {
	return &PostgresSink{db: db}
}

// EnsureSchema creates the audit table if it does not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}

// Write inserts one record.
func (s *PostgresSink) Write(ctx context.Context, r Record) error {
	var metaVal *string
	if len(r.Meta) > 0 {
		if b, err := json.Marshal(r.Meta); err == nil {
			v := string(b)
			metaVal = &v
		}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO huddle.audit_log (
			action, session_code, origin, created_at, meta
		) VALUES ($1, $2, $3, $4, $5::jsonb)
	`, r.Action, trimOrNil(r.Code), trimOrNil(r.Origin), r.At, metaVal)
	return err
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
