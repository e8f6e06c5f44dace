// internal/models/application.go
package models

import "time"

// Status is the lifecycle state of a permohonan.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusSubmitted || s == StatusCancelled
}

// CanTransition reports whether from -> to is a permitted lifecycle edge.
func CanTransition(from, to Status) bool {
	return from == StatusDraft && (to == StatusSubmitted || to == StatusCancelled)
}

// Application is a license application (permohonan).
type Application struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	CompanyID       string          `json:"companyId"`
	LicenseTypeID   string          `json:"licenseTypeId"`
	Status          Status          `json:"status"`
	SubmittedAt     *time.Time      `json:"submittedAt"`
	BusinessDetails BusinessDetails `json:"businessDetails"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// BusinessDetails is the structured business-operation record (butiran operasi).
type BusinessDetails struct {
	PremiseAddress string `json:"premiseAddress,omitempty"`
	BusinessName   string `json:"businessName,omitempty"`
	OperationType  string `json:"operationType,omitempty"`
	EmployeeCount  int    `json:"employeeCount"`
	Notes          string `json:"notes,omitempty"`
}

// BusinessDetailsPatch carries only the leaves a caller supplied.
type BusinessDetailsPatch struct {
	PremiseAddress *string `json:"premiseAddress,omitempty"`
	BusinessName   *string `json:"businessName,omitempty"`
	OperationType  *string `json:"operationType,omitempty"`
	EmployeeCount  *int    `json:"employeeCount,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

// Merge overwrites the supplied leaves of b.
func (b BusinessDetails) Merge(p *BusinessDetailsPatch) BusinessDetails {
	if p == nil {
		return b
	}
	if p.PremiseAddress != nil {
		b.PremiseAddress = *p.PremiseAddress
	}
	if p.BusinessName != nil {
		b.BusinessName = *p.BusinessName
	}
	if p.OperationType != nil {
		b.OperationType = *p.OperationType
	}
	if p.EmployeeCount != nil {
		b.EmployeeCount = *p.EmployeeCount
	}
	if p.Notes != nil {
		b.Notes = *p.Notes
	}
	return b
}

func (p *BusinessDetailsPatch) IsEmpty() bool {
	return p == nil || (p.PremiseAddress == nil && p.BusinessName == nil &&
		p.OperationType == nil && p.EmployeeCount == nil && p.Notes == nil)
}

// ApplicationPatch is a partial update of a draft.
type ApplicationPatch struct {
	CompanyID       *string               `json:"companyId,omitempty"`
	LicenseTypeID   *string               `json:"licenseTypeId,omitempty"`
	BusinessDetails *BusinessDetailsPatch `json:"businessDetails,omitempty"`
}

func (p ApplicationPatch) IsEmpty() bool {
	return p.CompanyID == nil && p.LicenseTypeID == nil && p.BusinessDetails.IsEmpty()
}

// Apply returns a copy of a with the patch applied.
func (p ApplicationPatch) Apply(a Application) Application {
	if p.CompanyID != nil {
		a.CompanyID = *p.CompanyID
	}
	if p.LicenseTypeID != nil {
		a.LicenseTypeID = *p.LicenseTypeID
	}
	a.BusinessDetails = a.BusinessDetails.Merge(p.BusinessDetails)
	return a
}

// ApplicationFilter narrows ListForUser results. Zero values match everything.
type ApplicationFilter struct {
	Status        Status `json:"status,omitempty"`
	LicenseTypeID string `json:"licenseTypeId,omitempty"`
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type ApplicationPage struct {
	Items  []Application `json:"items"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}
