package models

import "time"

// SubmissionEvent snapshots an application at the moment it was submitted.
type SubmissionEvent struct {
	EventID         string          `json:"eventId"`
	ApplicationID   string          `json:"applicationId"`
	UserID          string          `json:"userId"`
	CompanyID       string          `json:"companyId"`
	LicenseTypeID   string          `json:"licenseTypeId"`
	SubmittedAt     time.Time       `json:"submittedAt"`
	BusinessDetails BusinessDetails `json:"businessDetails"`
	OccurredAt      time.Time       `json:"occurredAt"`
}

// NewSubmissionEvent copies the fields downstream consumers need.
func NewSubmissionEvent(eventID string, app Application, now time.Time) SubmissionEvent {
	ev := SubmissionEvent{
		EventID:         eventID,
		ApplicationID:   app.ID,
		UserID:          app.UserID,
		CompanyID:       app.CompanyID,
		LicenseTypeID:   app.LicenseTypeID,
		BusinessDetails: app.BusinessDetails,
		OccurredAt:      now,
	}
	if app.SubmittedAt != nil {
		ev.SubmittedAt = *app.SubmittedAt
	}
	return ev
}

// UploadEvent snapshots a stored document.
type UploadEvent struct {
	EventID            string    `json:"eventId"`
	ApplicationID      string    `json:"applicationId"`
	DocumentID         string    `json:"documentId"`
	RequirementID      string    `json:"requirementId"`
	UploaderID         string    `json:"uploaderId"`
	OriginalFilename   string    `json:"originalFilename"`
	MimeType           string    `json:"mimeType"`
	SizeBytes          int64     `json:"sizeBytes"`
	StorageLocator     string    `json:"storageLocator"`
	ContentHash        string    `json:"contentHash"`
	PreviousDocumentID string    `json:"previousDocumentId,omitempty"`
	OccurredAt         time.Time `json:"occurredAt"`
}

func NewUploadEvent(eventID string, doc ApplicationDocument, previousID string, now time.Time) UploadEvent {
	return UploadEvent{
		EventID:            eventID,
		ApplicationID:      doc.PermohonanID,
		DocumentID:         doc.ID,
		RequirementID:      doc.RequirementID,
		UploaderID:         doc.UploadedBy,
		OriginalFilename:   doc.OriginalFilename,
		MimeType:           doc.MimeType,
		SizeBytes:          doc.SizeBytes,
		StorageLocator:     doc.StorageLocator,
		ContentHash:        doc.ContentHash,
		PreviousDocumentID: previousID,
		OccurredAt:         now,
	}
}

// AuditEntry is one append-only audit record. Entries with the same non-empty
// Key are stored once, which makes replayed side effects idempotent.
type AuditEntry struct {
	Key        string                 `json:"key,omitempty"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entityType"`
	EntityID   string                 `json:"entityId"`
	ActorID    *string                `json:"actorId,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
}

// Audit actions and entity types.
const (
	ActionPermohonanSubmitted = "permohonan_submitted"
	ActionPermohonanCancelled = "permohonan_cancelled"
	ActionDocumentUploaded    = "document_uploaded"
	ActionDocumentDeleted     = "document_deleted"
	ActionDocumentFlagged     = "document_flagged"

	EntityPermohonan = "permohonan"
	EntityDocument   = "permohonan_document"
)

// FailedAction names the audit action recorded when a side effect gives up.
func FailedAction(taskType string) string {
	return taskType + "_failed"
}
