// internal/workers/submission/forward-review/models.go
package forwardreview

import (
	"time"

	"permohonan-service/internal/models"
)

const (
	BackendHTTP  = "http"
	BackendZeebe = "zeebe"

	DefaultProcessID = "permohonan-review"
)

// ReviewRequest is the body handed to the review queue.
type ReviewRequest struct {
	EventID         string                 `json:"eventId"`
	ApplicationID   string                 `json:"applicationId"`
	UserID          string                 `json:"userId"`
	CompanyID       string                 `json:"companyId"`
	LicenseTypeID   string                 `json:"licenseTypeId"`
	SubmittedAt     time.Time              `json:"submittedAt"`
	BusinessDetails models.BusinessDetails `json:"businessDetails"`
}

func reviewRequestFrom(ev models.SubmissionEvent) ReviewRequest {
	return ReviewRequest{
		EventID:         ev.EventID,
		ApplicationID:   ev.ApplicationID,
		UserID:          ev.UserID,
		CompanyID:       ev.CompanyID,
		LicenseTypeID:   ev.LicenseTypeID,
		SubmittedAt:     ev.SubmittedAt,
		BusinessDetails: ev.BusinessDetails,
	}
}
