package shared

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID   uuid.UUID
	CarrierID uuid.UUID
	Action    string
	Entity    string
	EntityID  string
	Meta      map[string]any
	At        time.Time
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	db  Execer
	now func() time.Time
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db, now: time.Now}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return nil
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return ErrAuditInvalid
	}
	if log.Meta == nil {
		log.Meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	at := log.At
	if at.IsZero() {
		at = l.now()
	}
	_, err = l.db.Exec(ctx, `INSERT INTO audit_logs (actor_id, carrier_id, action, entity, entity_id, meta, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		nullableUUID(log.ActorID), nullableUUID(log.CarrierID), log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}

func nullableUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
