package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInvalidAudit marks an entry missing its action, entity or entity id.
var ErrInvalidAudit = errors.New("audit: action, entity and entity id required")

// AuditLog is one row of audit_logs. A zero ActorID records a system actor.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

func (l AuditLog) validate() error {
	if strings.TrimSpace(l.Action) == "" || strings.TrimSpace(l.Entity) == "" || strings.TrimSpace(l.EntityID) == "" {
		return fmt.Errorf("%w: action=%q entity=%q entity_id=%q", ErrInvalidAudit, l.Action, l.Entity, l.EntityID)
	}
	return nil
}

// AuditLogger writes role, assignment and office changes into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool, now: time.Now}
}

// Record persists the entry.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit: logger not initialised")
	}
	if err := entry.validate(); err != nil {
		return err
	}
	meta := entry.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("audit: encode meta: %w", err)
	}
	at := entry.At
	if at.IsZero() {
		at = l.now()
	}
	var actor *int64
	if entry.ActorID != 0 {
		actor = &entry.ActorID
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`, actor, entry.Action, entry.Entity, entry.EntityID, metaJSON, at.UTC())
	if err != nil {
		return fmt.Errorf("audit: insert %s: %w", entry.Action, err)
	}
	return nil
}
