// Package repository defines the persistence contracts for applications and
// their documents. Implementations enforce status preconditions atomically
// with the write they guard.
package repository

import (
	"context"
	"time"

	"permohonan-service/internal/models"
)

// ApplicationRepository persists permohonan and their documents.
//
// Status-conditional writes fail with a typed error when the row is not in the
// expected state: NOT_DRAFT for application writes, PERMOHONAN_NOT_DRAFT for
// document writes, DOCUMENT_ALREADY_VALIDATED for verified documents and
// NOT_FOUND for unknown ids.
type ApplicationRepository interface {
	Create(ctx context.Context, app models.Application) (*models.Application, error)
	FindByID(ctx context.Context, id string) (*models.Application, error)
	ListForUser(ctx context.Context, userID string, filter models.ApplicationFilter, page models.Page) (*models.ApplicationPage, error)

	// UpdateDraft applies patch only while the application is a draft.
	// Business-details leaves are merged, not replaced.
	UpdateDraft(ctx context.Context, id string, patch models.ApplicationPatch, now time.Time) (*models.Application, error)

	// TransitionStatus moves id from -> to only if the stored status is still
	// from. submittedAt is written when non-nil.
	TransitionStatus(ctx context.Context, id string, from, to models.Status, submittedAt *time.Time, now time.Time) (*models.Application, error)

	ListDocuments(ctx context.Context, permohonanID string) ([]models.ApplicationDocument, error)
	FindDocument(ctx context.Context, id string) (*models.ApplicationDocument, error)

	// ReplaceDocument stores doc as the sole document for its
	// (permohonan, requirement) pair and returns the row it superseded, if any.
	ReplaceDocument(ctx context.Context, doc models.ApplicationDocument) (*models.ApplicationDocument, error)

	// DeleteDocument removes an unverified document of a draft and returns it.
	DeleteDocument(ctx context.Context, id string) (*models.ApplicationDocument, error)

	MarkDocumentVerified(ctx context.Context, id, verifierID string, at time.Time) (*models.ApplicationDocument, error)
}

// Directory answers identity and company-ownership questions owned by other
// systems. It is read-only from this service's point of view.
type Directory interface {
	CompanyOwner(ctx context.Context, companyID string) (string, error)
	IsIdentityVerified(ctx context.Context, userID string) (bool, error)
}
