package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/models"
)

// PostgresSink appends to the audit_log table.
type PostgresSink struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db, now: time.Now}
}

func (s *PostgresSink) Record(ctx context.Context, entry models.AuditEntry) error {
	details, err := json.Marshal(entryDetails(entry))
	if err != nil {
		return errors.NewDatabaseError("encode audit details", err)
	}
	occurred := entry.OccurredAt
	if occurred.IsZero() {
		occurred = s.now().UTC()
	}

	var actor sql.NullString
	if entry.ActorID != nil {
		actor = sql.NullString{String: *entry.ActorID, Valid: true}
	}
	var key sql.NullString
	if entry.Key != "" {
		key = sql.NullString{String: entry.Key, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (idempotency_key, event_type, resource_type, resource_id, actor_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		key, entry.Action, entry.EntityType, entry.EntityID, actor, details, occurred,
	)
	if err != nil {
		return errors.NewDatabaseError("insert audit_log", err)
	}
	return nil
}

func entryDetails(entry models.AuditEntry) map[string]interface{} {
	if entry.Metadata == nil {
		return map[string]interface{}{}
	}
	return entry.Metadata
}
