// internal/workers/audit/record-event/handler.go
package recordevent

import (
	"context"
	"time"

	"permohonan-service/internal/audit"
	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/dispatch"
	"permohonan-service/internal/models"
)

const TaskType = dispatch.TaskRecordAuditEvent

// Handler writes queued audit entries to the sink. Entries carry an
// idempotency key, so a replayed task is stored once.
type Handler struct {
	sink    audit.Sink
	timeout time.Duration
	logger  logger.Logger
}

func NewHandler(sink audit.Sink, timeout time.Duration, log logger.Logger) *Handler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Handler{
		sink:    sink,
		timeout: timeout,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(ctx context.Context, task dispatch.Task) error {
	var entry models.AuditEntry
	if err := task.Decode(&entry); err != nil {
		return errors.NewInvalidTaskPayloadError(task.Type, err)
	}
	if entry.Key == "" {
		entry.Key = task.ID
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if err := h.sink.Record(ctx, entry); err != nil {
		return err
	}
	h.logger.Debug("audit entry recorded", map[string]interface{}{
		"action":   entry.Action,
		"entityId": entry.EntityID,
	})
	return nil
}
