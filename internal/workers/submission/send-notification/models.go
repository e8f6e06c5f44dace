// internal/workers/submission/send-notification/models.go
package sendnotification

import (
	"time"

	"permohonan-service/internal/models"
)

const (
	BackendHTTP = "http"
	BackendSNS  = "sns"
	BackendSES  = "ses"
)

// Notification is the body delivered to the notification gateway.
type Notification struct {
	ApplicationID   string                 `json:"applicationId"`
	UserID          string                 `json:"userId"`
	CompanyID       string                 `json:"companyId"`
	LicenseTypeID   string                 `json:"licenseTypeId"`
	SubmittedAt     time.Time              `json:"submittedAt"`
	BusinessDetails models.BusinessDetails `json:"businessDetails"`
}

func notificationFrom(ev models.SubmissionEvent) Notification {
	return Notification{
		ApplicationID:   ev.ApplicationID,
		UserID:          ev.UserID,
		CompanyID:       ev.CompanyID,
		LicenseTypeID:   ev.LicenseTypeID,
		SubmittedAt:     ev.SubmittedAt,
		BusinessDetails: ev.BusinessDetails,
	}
}
