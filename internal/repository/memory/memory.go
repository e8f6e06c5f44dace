// Package memory is an in-process ApplicationRepository and Directory used by
// tests and local runs without PostgreSQL. A single mutex stands in for the
// row locks and conditional updates of the postgres implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/models"
)

type Repository struct {
	mu        sync.Mutex
	apps      map[string]models.Application
	documents map[string]models.ApplicationDocument
	directory *Directory
}

// NewRepository returns an empty repository. When dir is non-nil, Create
// enforces that the referenced user and company exist in it.
func NewRepository(dir *Directory) *Repository {
	return &Repository{
		apps:      make(map[string]models.Application),
		documents: make(map[string]models.ApplicationDocument),
		directory: dir,
	}
}

func (r *Repository) Create(_ context.Context, app models.Application) (*models.Application, error) {
	if r.directory != nil {
		if !r.directory.hasUser(app.UserID) {
			return nil, errors.NewNotFoundError("user", app.UserID)
		}
		if !r.directory.hasCompany(app.CompanyID) {
			return nil, errors.NewNotFoundError("company", app.CompanyID)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.apps[app.ID]; exists {
		return nil, errors.NewDatabaseError("insert permohonan", fmt.Errorf("duplicate id %s", app.ID))
	}
	app.UpdatedAt = app.CreatedAt
	r.apps[app.ID] = app
	return copyApp(app), nil
}

func (r *Repository) FindByID(_ context.Context, id string) (*models.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[id]
	if !ok {
		return nil, errors.NewNotFoundError("permohonan", id)
	}
	return copyApp(app), nil
}

func (r *Repository) ListForUser(_ context.Context, userID string, filter models.ApplicationFilter, page models.Page) (*models.ApplicationPage, error) {
	page = page.Normalize()

	r.mu.Lock()
	matched := make([]models.Application, 0)
	for _, app := range r.apps {
		if app.UserID != userID {
			continue
		}
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		if filter.LicenseTypeID != "" && app.LicenseTypeID != filter.LicenseTypeID {
			continue
		}
		matched = append(matched, app)
	}
	r.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	start := page.Offset
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}

	return &models.ApplicationPage{
		Items:  matched[start:end],
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}, nil
}

func (r *Repository) UpdateDraft(_ context.Context, id string, patch models.ApplicationPatch, now time.Time) (*models.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[id]
	if !ok {
		return nil, errors.NewNotFoundError("permohonan", id)
	}
	if app.Status != models.StatusDraft {
		return nil, errors.NewNotDraftError(id, string(app.Status))
	}
	app = patch.Apply(app)
	app.UpdatedAt = now
	r.apps[id] = app
	return copyApp(app), nil
}

func (r *Repository) TransitionStatus(_ context.Context, id string, from, to models.Status, submittedAt *time.Time, now time.Time) (*models.Application, error) {
	if !models.CanTransition(from, to) {
		return nil, fmt.Errorf("illegal transition %s -> %s", from, to)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[id]
	if !ok {
		return nil, errors.NewNotFoundError("permohonan", id)
	}
	if app.Status != from {
		return nil, errors.NewNotDraftError(id, string(app.Status))
	}
	app.Status = to
	if submittedAt != nil && app.SubmittedAt == nil {
		t := *submittedAt
		app.SubmittedAt = &t
	}
	app.UpdatedAt = now
	r.apps[id] = app
	return copyApp(app), nil
}

func (r *Repository) ListDocuments(_ context.Context, permohonanID string) ([]models.ApplicationDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var docs []models.ApplicationDocument
	for _, d := range r.documents {
		if d.PermohonanID == permohonanID {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].RequirementID < docs[j].RequirementID })
	return docs, nil
}

func (r *Repository) FindDocument(_ context.Context, id string) (*models.ApplicationDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.documents[id]
	if !ok {
		return nil, errors.NewNotFoundError("document", id)
	}
	return &d, nil
}

// draftParent must be called with mu held.
func (r *Repository) draftParent(permohonanID string) error {
	app, ok := r.apps[permohonanID]
	if !ok {
		return errors.NewNotFoundError("permohonan", permohonanID)
	}
	if app.Status != models.StatusDraft {
		return errors.NewPermohonanNotDraftError(permohonanID, string(app.Status))
	}
	return nil
}

func (r *Repository) ReplaceDocument(_ context.Context, doc models.ApplicationDocument) (*models.ApplicationDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.draftParent(doc.PermohonanID); err != nil {
		return nil, err
	}

	var previous *models.ApplicationDocument
	for id, d := range r.documents {
		if d.PermohonanID == doc.PermohonanID && d.RequirementID == doc.RequirementID {
			if d.IsVerified() {
				return nil, errors.NewDocumentAlreadyValidatedError(d.ID)
			}
			prev := d
			previous = &prev
			delete(r.documents, id)
			break
		}
	}

	doc.ValidationStatus = models.DocumentUnverified
	doc.VerifiedBy = nil
	doc.VerifiedAt = nil
	doc.UpdatedAt = doc.CreatedAt
	r.documents[doc.ID] = doc
	return previous, nil
}

func (r *Repository) DeleteDocument(_ context.Context, id string) (*models.ApplicationDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.documents[id]
	if !ok {
		return nil, errors.NewNotFoundError("document", id)
	}
	if err := r.draftParent(d.PermohonanID); err != nil {
		return nil, err
	}
	if d.IsVerified() {
		return nil, errors.NewDocumentAlreadyValidatedError(id)
	}
	delete(r.documents, id)
	return &d, nil
}

func (r *Repository) MarkDocumentVerified(_ context.Context, id, verifierID string, at time.Time) (*models.ApplicationDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.documents[id]
	if !ok {
		return nil, errors.NewNotFoundError("document", id)
	}
	d.ValidationStatus = models.DocumentVerified
	d.VerifiedBy = &verifierID
	d.VerifiedAt = &at
	d.UpdatedAt = at
	r.documents[id] = d
	return &d, nil
}

// DeleteApplication removes an application and cascades to its documents.
func (r *Repository) DeleteApplication(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.apps, id)
	for docID, d := range r.documents {
		if d.PermohonanID == id {
			delete(r.documents, docID)
		}
	}
}

func copyApp(app models.Application) *models.Application {
	if app.SubmittedAt != nil {
		t := *app.SubmittedAt
		app.SubmittedAt = &t
	}
	return &app
}

// Directory is an in-memory identity and company registry.
type Directory struct {
	mu        sync.RWMutex
	users     map[string]models.User
	companies map[string]models.Company
}

func NewDirectory() *Directory {
	return &Directory{
		users:     make(map[string]models.User),
		companies: make(map[string]models.Company),
	}
}

func (d *Directory) AddUser(u models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *Directory) AddCompany(c models.Company) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.companies[c.ID] = c
}

// SetIdentityVerified flips the identity flag of an existing user.
func (d *Directory) SetIdentityVerified(userID string, verified bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.users[userID]
	u.ID = userID
	u.IdentityVerified = verified
	d.users[userID] = u
}

// TransferCompany changes the owner of a company.
func (d *Directory) TransferCompany(companyID, newOwnerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.companies[companyID]
	c.OwnerID = newOwnerID
	d.companies[companyID] = c
}

func (d *Directory) CompanyOwner(_ context.Context, companyID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.companies[companyID]
	if !ok {
		return "", errors.NewNotFoundError("company", companyID)
	}
	return c.OwnerID, nil
}

func (d *Directory) IsIdentityVerified(_ context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.users[userID].IdentityVerified, nil
}

func (d *Directory) hasUser(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[id]
	return ok
}

func (d *Directory) hasCompany(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.companies[id]
	return ok
}
