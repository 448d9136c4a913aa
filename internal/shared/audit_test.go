package shared

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type captureExec struct {
	sql  string
	args []any
}

func (c *captureExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.sql = sql
	c.args = args
	return pgconn.CommandTag{}, nil
}

func TestAuditLoggerRecord(t *testing.T) {
	exec := &captureExec{}
	logger := NewAuditLogger(exec)
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	logger.now = func() time.Time { return fixed }

	actor := uuid.New()
	err := logger.Record(context.Background(), AuditLog{
		ActorID:  actor,
		Action:   "payment.create",
		Entity:   "invoice",
		EntityID: "inv-1",
		Meta:     map[string]any{"amount": "10.00"},
	})
	require.NoError(t, err)
	require.Contains(t, exec.sql, "INSERT INTO audit_logs")
	require.Equal(t, actor, exec.args[0])
	require.Nil(t, exec.args[1])
	require.Equal(t, fixed, exec.args[6])

	var meta map[string]any
	require.NoError(t, json.Unmarshal(exec.args[5].([]byte), &meta))
	require.Equal(t, "10.00", meta["amount"])
}

func TestAuditLoggerRejectsIncompleteEntry(t *testing.T) {
	logger := NewAuditLogger(&captureExec{})
	require.ErrorIs(t, logger.Record(context.Background(), AuditLog{Action: "x"}), ErrAuditInvalid)
}
