package models

import "time"

type ValidationStatus string

const (
	DocumentUnverified ValidationStatus = "unverified"
	DocumentVerified   ValidationStatus = "verified"
)

// ApplicationDocument is a file attached to a permohonan for one requirement.
type ApplicationDocument struct {
	ID               string           `json:"id"`
	PermohonanID     string           `json:"permohonanId"`
	RequirementID    string           `json:"requirementId"`
	OriginalFilename string           `json:"originalFilename"`
	MimeType         string           `json:"mimeType"`
	SizeBytes        int64            `json:"sizeBytes"`
	StorageLocator   string           `json:"storageLocator"`
	ContentHash      string           `json:"contentHash,omitempty"`
	ValidationStatus ValidationStatus `json:"validationStatus"`
	UploadedBy       string           `json:"uploadedBy"`
	VerifiedBy       *string          `json:"verifiedBy,omitempty"`
	VerifiedAt       *time.Time       `json:"verifiedAt,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

func (d ApplicationDocument) IsVerified() bool {
	return d.ValidationStatus == DocumentVerified
}
