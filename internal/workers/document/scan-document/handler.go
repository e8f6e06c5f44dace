// internal/workers/document/scan-document/handler.go
package scandocument

import (
	"context"

	"permohonan-service/internal/audit"
	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/dispatch"
	"permohonan-service/internal/models"
	"permohonan-service/internal/storage"
)

const TaskType = dispatch.TaskScanDocument

type Scanner interface {
	Scan(ctx context.Context, filename string, content []byte) (*Verdict, error)
}

// BlobReader is the read side of storage.DocumentStore.
type BlobReader interface {
	Get(ctx context.Context, locator string) ([]byte, error)
}

type Handler struct {
	config  *Config
	store   BlobReader
	scanner Scanner
	audit   audit.Sink
	logger  logger.Logger
}

func NewHandler(config *Config, store BlobReader, scanner Scanner, sink audit.Sink, log logger.Logger) *Handler {
	return &Handler{
		config:  config,
		store:   store,
		scanner: scanner,
		audit:   sink,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(ctx context.Context, task dispatch.Task) error {
	var ev models.UploadEvent
	if err := task.Decode(&ev); err != nil {
		return errors.NewInvalidTaskPayloadError(task.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	content, err := h.store.Get(ctx, ev.StorageLocator)
	if errors.Is(err, errors.ErrCodeNotFound) {
		// replaced or deleted before the scan ran
		h.logger.Info("blob gone, scan skipped", map[string]interface{}{"documentId": ev.DocumentID})
		return nil
	}
	if err != nil {
		return err
	}

	reasons := map[string]interface{}{}
	if ev.ContentHash != "" && storage.ContentHash(content) != ev.ContentHash {
		reasons["hashMismatch"] = true
	}

	verdict, err := h.scanner.Scan(ctx, ev.OriginalFilename, content)
	if err != nil {
		return err
	}
	if !verdict.Clean {
		reasons["signature"] = verdict.Signature
	}

	if len(reasons) == 0 {
		h.logger.Debug("document clean", map[string]interface{}{"documentId": ev.DocumentID})
		return nil
	}

	h.logger.Warn("document flagged", map[string]interface{}{
		"documentId": ev.DocumentID,
		"reasons":    reasons,
	})
	reasons["permohonanId"] = ev.ApplicationID
	reasons["locator"] = ev.StorageLocator
	return h.audit.Record(ctx, models.AuditEntry{
		Key:        ev.EventID + ":" + models.ActionDocumentFlagged,
		Action:     models.ActionDocumentFlagged,
		EntityType: models.EntityDocument,
		EntityID:   ev.DocumentID,
		ActorID:    task.ActorID,
		Metadata:   reasons,
		OccurredAt: ev.OccurredAt,
	})
}
