// Package attachment validates and records the documents attached to a
// permohonan.
package attachment

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"permohonan-service/internal/common/config"
	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/common/metrics"
	"permohonan-service/internal/models"
	"permohonan-service/internal/repository"
	"permohonan-service/internal/services/lifecycle"
	"permohonan-service/internal/storage"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// overflowFactor bounds how far past the ceiling an undeclared upload is read
// to report its size.
const overflowFactor = 4

// Requirements resolves the document requirements of a license type.
type Requirements interface {
	GetDocumentRequirements(ctx context.Context, licenseTypeID string) ([]models.DocumentRequirement, error)
}

type EventDispatcher interface {
	DispatchUpload(ctx context.Context, ev models.UploadEvent) error
	DispatchAudit(ctx context.Context, entry models.AuditEntry) error
}

// OrphanRecorder remembers blobs whose deletion failed so they can be swept later.
type OrphanRecorder interface {
	RecordOrphan(ctx context.Context, locator, reason string, cause error) error
}

type Deps struct {
	Repository   repository.ApplicationRepository
	Requirements Requirements
	Store        storage.DocumentStore
	Dispatcher   EventDispatcher
	Orphans      OrphanRecorder
}

type Manager struct {
	repo         repository.ApplicationRepository
	requirements Requirements
	store        storage.DocumentStore
	dispatcher   EventDispatcher
	orphans      OrphanRecorder
	maxSize      int64
	allowed      []string
	logger       logger.Logger

	now   func() time.Time
	newID func() string
}

func NewManager(cfg config.UploadConfig, deps Deps, log logger.Logger) *Manager {
	allowed := make([]string, 0, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed = append(allowed, strings.ToLower(strings.TrimPrefix(ext, ".")))
	}
	return &Manager{
		repo:         deps.Repository,
		requirements: deps.Requirements,
		store:        deps.Store,
		dispatcher:   deps.Dispatcher,
		orphans:      deps.Orphans,
		maxSize:      cfg.MaxSizeBytes,
		allowed:      allowed,
		logger:       log.WithFields(map[string]interface{}{"component": "document-attachment-manager"}),
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
	}
}

// UploadInput is a file offered for one requirement. Size is the length
// declared by the transport, or 0 when unknown.
type UploadInput struct {
	PermohonanID  string
	RequirementID string
	Filename      string
	Size          int64
	Content       io.Reader
}

// Upload stores a file as the document for its requirement, replacing any
// earlier unverified upload for the same requirement. The draft status is
// checked again inside the write.
func (m *Manager) Upload(ctx context.Context, actor models.Actor, in UploadInput) (*models.ApplicationDocument, error) {
	app, err := m.repo.FindByID(ctx, in.PermohonanID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.IsOwner(actor, *app); err != nil {
		return nil, err
	}
	if app.Status != models.StatusDraft {
		return nil, errors.NewPermohonanNotDraftError(app.ID, string(app.Status))
	}
	if err := m.checkRequirement(ctx, *app, in.RequirementID); err != nil {
		return nil, err
	}

	content, mime, err := m.readFile(in)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	docID := m.newID()
	key := storage.DocumentKey(app.ID, in.RequirementID, docID, mime.Extension())
	locator, err := m.store.Put(ctx, key, content)
	if err != nil {
		return nil, err
	}

	doc := models.ApplicationDocument{
		ID:               docID,
		PermohonanID:     app.ID,
		RequirementID:    in.RequirementID,
		OriginalFilename: filepath.Base(in.Filename),
		MimeType:         mime.String(),
		SizeBytes:        int64(len(content)),
		StorageLocator:   locator,
		ContentHash:      storage.ContentHash(content),
		ValidationStatus: models.DocumentUnverified,
		UploadedBy:       actor.UserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	previous, err := m.repo.ReplaceDocument(ctx, doc)
	if err != nil {
		m.discardBlob(ctx, locator, "upload rolled back")
		return nil, err
	}

	previousID := ""
	if previous != nil {
		previousID = previous.ID
		m.discardBlob(ctx, previous.StorageLocator, "replaced by "+doc.ID)
	}

	ev := models.NewUploadEvent(m.newID(), doc, previousID, now)
	if err := m.dispatcher.DispatchUpload(context.WithoutCancel(ctx), ev); err != nil {
		m.logger.Error("upload stored but side effects were not enqueued", map[string]interface{}{
			"documentId": doc.ID,
			"error":      err.Error(),
		})
	}

	m.logger.Info("document uploaded", map[string]interface{}{
		"permohonanId":  app.ID,
		"documentId":    doc.ID,
		"requirementId": doc.RequirementID,
		"sizeBytes":     doc.SizeBytes,
		"replaced":      previousID,
	})
	return &doc, nil
}

// Delete removes an unverified document of a draft. The order is the reverse
// of Upload: the row is deleted and committed first, then the blob. The row
// delete is authoritative. If the blob delete fails the document is already
// gone and the blob is recorded in the orphan ledger for the sweeper.
func (m *Manager) Delete(ctx context.Context, actor models.Actor, documentID string) error {
	doc, err := m.repo.FindDocument(ctx, documentID)
	if err != nil {
		return err
	}
	app, err := m.repo.FindByID(ctx, doc.PermohonanID)
	if err != nil {
		return err
	}
	if err := lifecycle.IsOwner(actor, *app); err != nil {
		return err
	}

	deleted, err := m.repo.DeleteDocument(ctx, documentID)
	if err != nil {
		return err
	}
	m.discardBlob(ctx, deleted.StorageLocator, "document deleted")

	actorID := actor.UserID
	if err := m.dispatcher.DispatchAudit(context.WithoutCancel(ctx), models.AuditEntry{
		Key:        deleted.ID + ":" + models.ActionDocumentDeleted,
		Action:     models.ActionDocumentDeleted,
		EntityType: models.EntityDocument,
		EntityID:   deleted.ID,
		ActorID:    &actorID,
		Metadata: map[string]interface{}{
			"permohonanId":  deleted.PermohonanID,
			"requirementId": deleted.RequirementID,
		},
		OccurredAt: m.now().UTC(),
	}); err != nil {
		m.logger.Error("document deleted but audit was not enqueued", map[string]interface{}{
			"documentId": deleted.ID,
			"error":      err.Error(),
		})
	}
	return nil
}

func (m *Manager) checkRequirement(ctx context.Context, app models.Application, requirementID string) error {
	if requirementID == "" {
		return errors.NewValidationFailedError([]errors.FieldError{{Field: "requirementId", Message: "is required"}})
	}
	reqs, err := m.requirements.GetDocumentRequirements(ctx, app.LicenseTypeID)
	if err != nil {
		return err
	}
	for _, r := range reqs {
		if r.ID == requirementID {
			return nil
		}
	}
	return errors.NewInvalidRequirementError(requirementID, app.LicenseTypeID)
}

// readFile enforces the type allow-list on both the filename and the sniffed
// content, then the size ceiling.
func (m *Manager) readFile(in UploadInput) ([]byte, *mimetype.MIME, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(in.Filename)), ".")
	if !m.isAllowed(ext) {
		metrics.UploadsRejected.WithLabelValues("file_type").Inc()
		return nil, nil, errors.NewInvalidFileTypeError(displayExt(ext), m.allowed)
	}
	if m.maxSize > 0 && in.Size > m.maxSize {
		metrics.UploadsRejected.WithLabelValues("file_size").Inc()
		return nil, nil, errors.NewFileSizeExceededError(in.Size, m.maxSize)
	}

	limit := m.maxSize + 1
	if m.maxSize <= 0 {
		limit = 1 << 62
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(in.Content, limit)); err != nil {
		return nil, nil, errors.NewValidationFailedError([]errors.FieldError{{Field: "file", Message: "could not be read"}})
	}
	if m.maxSize > 0 && int64(buf.Len()) > m.maxSize {
		metrics.UploadsRejected.WithLabelValues("file_size").Inc()
		if in.Size > int64(buf.Len()) {
			return nil, nil, errors.NewFileSizeExceededError(in.Size, m.maxSize)
		}
		return nil, nil, m.measureOversize(int64(buf.Len()), in.Content)
	}

	mime := mimetype.Detect(buf.Bytes())
	if !m.isAllowed(strings.TrimPrefix(mime.Extension(), ".")) {
		metrics.UploadsRejected.WithLabelValues("file_type").Inc()
		return nil, nil, errors.NewInvalidFileTypeError(mime.String(), m.allowed)
	}
	return buf.Bytes(), mime, nil
}

// measureOversize counts the rest of an oversized upload whose size was not
// declared, reading at most a few times the ceiling. When the stream is longer
// than that, actual is a lower bound and flagged as such.
func (m *Manager) measureOversize(read int64, rest io.Reader) error {
	bound := overflowFactor * m.maxSize
	n, err := io.Copy(io.Discard, io.LimitReader(rest, bound+1))
	if err != nil || n > bound {
		if n > bound {
			n = bound
		}
		return errors.NewFileSizeExceededError(read+n, m.maxSize).
			WithMetadata("actualIsLowerBound", true)
	}
	return errors.NewFileSizeExceededError(read+n, m.maxSize)
}

func (m *Manager) isAllowed(ext string) bool {
	for _, a := range m.allowed {
		if a == ext || (isJPEG(a) && isJPEG(ext)) {
			return true
		}
	}
	return false
}

func isJPEG(ext string) bool { return ext == "jpg" || ext == "jpeg" }

func displayExt(ext string) string {
	if ext == "" {
		return "(none)"
	}
	return ext
}

func (m *Manager) discardBlob(ctx context.Context, locator, reason string) {
	ctx = context.WithoutCancel(ctx)
	_, err := m.store.Delete(ctx, locator)
	if err == nil {
		return
	}

	metrics.OrphanedBlobs.WithLabelValues("recorded").Inc()
	m.logger.Warn("blob delete failed, flagged for cleanup", map[string]interface{}{
		"locator": locator,
		"reason":  reason,
		"error":   err.Error(),
	})
	if m.orphans == nil {
		return
	}
	if err := m.orphans.RecordOrphan(ctx, locator, reason, err); err != nil {
		m.logger.Error("failed to record orphaned blob", map[string]interface{}{
			"locator": locator,
			"error":   err.Error(),
		})
	}
}
