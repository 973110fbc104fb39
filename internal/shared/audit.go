package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog is one row of audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// ErrInvalidAuditLog reports a record missing its action, entity or entity id.
var ErrInvalidAuditLog = errors.New("shared: incomplete audit log")

// Validate checks the fields every audit record needs.
func (log AuditLog) Validate() error {
	switch {
	case log.Action == "":
		return fmt.Errorf("%w: action", ErrInvalidAuditLog)
	case log.Entity == "":
		return fmt.Errorf("%w: entity", ErrInvalidAuditLog)
	case log.EntityID == "":
		return fmt.Errorf("%w: entity id", ErrInvalidAuditLog)
	}
	return nil
}

// AuditLogger appends rollover and posting events to audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger binds the logger to pool.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

const insertAuditLog = `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES (NULLIF(@actor, 0), @action, @entity, @entity_id, @meta, COALESCE(@at, NOW()))`

// Record persists log. A zero At is stamped by the database.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("shared: audit logger not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	args := pgx.NamedArgs{
		"actor":     log.ActorID,
		"action":    log.Action,
		"entity":    log.Entity,
		"entity_id": log.EntityID,
		"meta":      log.Meta,
		"at":        nil,
	}
	if !log.At.IsZero() {
		args["at"] = log.At.UTC()
	}
	_, err := l.pool.Exec(ctx, insertAuditLog, args)
	return err
}
