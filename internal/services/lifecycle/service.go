// Package lifecycle implements the permohonan state machine: draft creation and
// editing, completeness evaluation, submission and cancellation.
package lifecycle

import (
	"context"
	"time"

	"permohonan-service/internal/audit"
	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/common/metrics"
	"permohonan-service/internal/common/observability"
	"permohonan-service/internal/common/validation"
	"permohonan-service/internal/models"
	"permohonan-service/internal/repository"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Catalog is the subset of the catalog service the lifecycle reads.
type Catalog interface {
	GetLicenseTypes(ctx context.Context) ([]models.LicenseType, error)
	LookupLicenseType(ctx context.Context, id string) (*models.LicenseType, error)
	GetDocumentRequirements(ctx context.Context, licenseTypeID string) ([]models.DocumentRequirement, error)
}

// EventDispatcher receives committed submissions.
type EventDispatcher interface {
	DispatchSubmission(ctx context.Context, ev models.SubmissionEvent) error
}

type Deps struct {
	Repository    repository.ApplicationRepository
	Directory     repository.Directory
	Catalog       Catalog
	Audit         audit.Sink
	Dispatcher    EventDispatcher
	Observability *observability.Observability
}

type Service struct {
	repo       repository.ApplicationRepository
	directory  repository.Directory
	catalog    Catalog
	audit      audit.Sink
	dispatcher EventDispatcher
	validator  *validation.Validator
	obs        *observability.Observability
	tracer     trace.Tracer
	logger     logger.Logger

	now   func() time.Time
	newID func() string
}

func NewService(deps Deps, log logger.Logger) *Service {
	return &Service{
		repo:       deps.Repository,
		directory:  deps.Directory,
		catalog:    deps.Catalog,
		audit:      deps.Audit,
		dispatcher: deps.Dispatcher,
		validator:  validation.NewBusinessDetailsValidator(),
		obs:        deps.Observability,
		tracer:     otel.Tracer("permohonan-service/lifecycle"),
		logger:     log.WithFields(map[string]interface{}{"component": "application-lifecycle"}),
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// CreateDraftInput carries the fields of a new application.
type CreateDraftInput struct {
	CompanyID       string                 `json:"companyId"`
	LicenseTypeID   string                 `json:"licenseTypeId"`
	BusinessDetails models.BusinessDetails `json:"businessDetails"`
}

func (s *Service) CreateDraft(ctx context.Context, actor models.Actor, in CreateDraftInput) (app *models.Application, err error) {
	ctx, span := s.startSpan(ctx, "CreateDraft", "")
	defer func() { s.endSpan(span, err) }()

	var fields []errors.FieldError
	if in.CompanyID == "" {
		fields = append(fields, errors.FieldError{Field: "companyId", Message: "is required"})
	}
	if in.LicenseTypeID == "" {
		fields = append(fields, errors.FieldError{Field: "licenseTypeId", Message: "is required"})
	}
	fields = append(fields, s.validateDetails(in.BusinessDetails)...)
	if len(fields) > 0 {
		return nil, errors.NewValidationFailedError(fields)
	}

	if err := s.checkCompany(ctx, actor, in.CompanyID); err != nil {
		return nil, err
	}
	if _, err := s.catalog.LookupLicenseType(ctx, in.LicenseTypeID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	created, err := s.repo.Create(ctx, models.Application{
		ID:              s.newID(),
		UserID:          actor.UserID,
		CompanyID:       in.CompanyID,
		LicenseTypeID:   in.LicenseTypeID,
		Status:          models.StatusDraft,
		BusinessDetails: in.BusinessDetails,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("draft created", map[string]interface{}{
		"permohonanId":  created.ID,
		"userId":        actor.UserID,
		"licenseTypeId": created.LicenseTypeID,
	})
	return created, nil
}

// UpdateDraft applies a partial update. Business-details leaves that are not
// in the patch keep their stored values.
func (s *Service) UpdateDraft(ctx context.Context, actor models.Actor, id string, patch models.ApplicationPatch) (app *models.Application, err error) {
	ctx, span := s.startSpan(ctx, "UpdateDraft", id)
	defer func() { s.endSpan(span, err) }()

	var fields []errors.FieldError
	if patch.CompanyID != nil && *patch.CompanyID == "" {
		fields = append(fields, errors.FieldError{Field: "companyId", Message: "must not be empty"})
	}
	if patch.LicenseTypeID != nil && *patch.LicenseTypeID == "" {
		fields = append(fields, errors.FieldError{Field: "licenseTypeId", Message: "must not be empty"})
	}
	if patch.BusinessDetails != nil {
		fields = append(fields, s.validateDetails(patch.BusinessDetails)...)
	}
	if len(fields) > 0 {
		return nil, errors.NewValidationFailedError(fields)
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanEdit(actor, *current); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return current, nil
	}

	if patch.CompanyID != nil && *patch.CompanyID != current.CompanyID {
		if err := s.checkCompany(ctx, actor, *patch.CompanyID); err != nil {
			return nil, err
		}
	}
	if patch.LicenseTypeID != nil && *patch.LicenseTypeID != current.LicenseTypeID {
		if _, err := s.catalog.LookupLicenseType(ctx, *patch.LicenseTypeID); err != nil {
			return nil, err
		}
	}

	return s.repo.UpdateDraft(ctx, id, patch, s.now().UTC())
}

// EvaluateCompleteness reports, per requirement of the application's license
// type, whether a document is attached. It performs no writes.
func (s *Service) EvaluateCompleteness(ctx context.Context, app models.Application) (*models.Completeness, error) {
	reqs, err := s.catalog.GetDocumentRequirements(ctx, app.LicenseTypeID)
	if err != nil {
		return nil, err
	}
	docs, err := s.repo.ListDocuments(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	result := Evaluate(app, reqs, docs)
	return &result, nil
}

// Completeness is EvaluateCompleteness for an application the actor owns.
func (s *Service) Completeness(ctx context.Context, actor models.Actor, id string) (*models.Completeness, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := IsOwner(actor, *app); err != nil {
		return nil, err
	}
	return s.EvaluateCompleteness(ctx, *app)
}

// Submit moves a complete draft to submitted. Preconditions are checked in
// order and the first failure is returned: owner, draft, identity verified,
// license type published, mandatory documents attached, company still owned.
// The transition itself is conditional on the draft status, so of two
// concurrent submit or cancel calls exactly one succeeds. Side effects are
// dispatched after the commit and never undo it.
func (s *Service) Submit(ctx context.Context, actor models.Actor, id string) (app *models.Application, err error) {
	ctx, span := s.startSpan(ctx, "Submit", id)
	defer func() {
		s.recordTransition(ctx, "submit", err)
		s.endSpan(span, err)
	}()

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := IsOwner(actor, *current); err != nil {
		return nil, err
	}
	if err := IsDraft(*current); err != nil {
		return nil, err
	}

	verified, err := s.directory.IsIdentityVerified(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if err := IdentityVerified(actor, verified); err != nil {
		return nil, err
	}

	if _, err := s.catalog.LookupLicenseType(ctx, current.LicenseTypeID); err != nil {
		return nil, err
	}
	completeness, err := s.EvaluateCompleteness(ctx, *current)
	if err != nil {
		return nil, err
	}
	if !completeness.Complete {
		return nil, errors.NewIncompleteError(completeness.Missing)
	}

	if err := s.checkCompany(ctx, actor, current.CompanyID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	submitted, err := s.repo.TransitionStatus(ctx, id, models.StatusDraft, models.StatusSubmitted, &now, now)
	if err != nil {
		return nil, err
	}

	ev := models.NewSubmissionEvent(s.newID(), *submitted, now)
	if err := s.dispatcher.DispatchSubmission(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Error("submission committed but side effects were not enqueued", map[string]interface{}{
			"permohonanId": id,
			"eventId":      ev.EventID,
			"error":        err.Error(),
		})
	}

	s.logger.Info("permohonan submitted", map[string]interface{}{
		"permohonanId": id,
		"userId":       actor.UserID,
		"eventId":      ev.EventID,
	})
	return submitted, nil
}

// Cancel moves a draft to cancelled and writes the audit entry carrying the
// reason synchronously. An audit failure is returned together with the
// already-cancelled application.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, id, reason string) (app *models.Application, err error) {
	ctx, span := s.startSpan(ctx, "Cancel", id)
	defer func() {
		s.recordTransition(ctx, "cancel", err)
		s.endSpan(span, err)
	}()

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanEdit(actor, *current); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	cancelled, err := s.repo.TransitionStatus(ctx, id, models.StatusDraft, models.StatusCancelled, nil, now)
	if err != nil {
		return nil, err
	}

	actorID := actor.UserID
	auditErr := s.audit.Record(ctx, models.AuditEntry{
		Key:        id + ":" + models.ActionPermohonanCancelled,
		Action:     models.ActionPermohonanCancelled,
		EntityType: models.EntityPermohonan,
		EntityID:   id,
		ActorID:    &actorID,
		Metadata:   map[string]interface{}{"reason": reason},
		OccurredAt: now,
	})
	if auditErr != nil {
		s.logger.Error("cancellation committed but audit write failed", map[string]interface{}{
			"permohonanId": id,
			"error":        auditErr.Error(),
		})
		return cancelled, auditErr
	}

	s.logger.Info("permohonan cancelled", map[string]interface{}{
		"permohonanId": id,
		"userId":       actor.UserID,
	})
	return cancelled, nil
}

// Get returns the application with its license type and documents resolved.
// A catalog outage leaves LicenseType nil rather than failing the read.
func (s *Service) Get(ctx context.Context, actor models.Actor, id string) (*models.ApplicationView, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := IsOwner(actor, *app); err != nil {
		return nil, err
	}
	docs, err := s.repo.ListDocuments(ctx, id)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.ApplicationDocument{}
	}

	view := &models.ApplicationView{Application: *app, Documents: docs}
	lt, err := s.catalog.LookupLicenseType(ctx, app.LicenseTypeID)
	switch {
	case err == nil:
		view.LicenseType = lt
	case errors.Is(err, errors.ErrCodeInvalidLicenseType):
	default:
		s.logger.Warn("license type unresolved for view", map[string]interface{}{
			"permohonanId": id,
			"error":        err.Error(),
		})
	}
	return view, nil
}

// ListForUser pages through the actor's own applications. License types are
// resolved once for the whole page.
func (s *Service) ListForUser(ctx context.Context, actor models.Actor, filter models.ApplicationFilter, page models.Page) (*models.ApplicationViewPage, error) {
	if actor.UserID == "" {
		return nil, errors.NewNotOwnerError("")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, errors.NewValidationFailedError([]errors.FieldError{
			{Field: "status", Message: "must be one of draft, submitted, cancelled"},
		})
	}

	result, err := s.repo.ListForUser(ctx, actor.UserID, filter, page)
	if err != nil {
		return nil, err
	}

	types := map[string]*models.LicenseType{}
	if all, err := s.catalog.GetLicenseTypes(ctx); err == nil {
		for i := range all {
			types[all[i].ID] = &all[i]
		}
	} else {
		s.logger.Warn("license types unresolved for list", map[string]interface{}{"error": err.Error()})
	}

	items := make([]models.ApplicationView, 0, len(result.Items))
	for _, app := range result.Items {
		items = append(items, models.ApplicationView{Application: app, LicenseType: types[app.LicenseTypeID]})
	}
	return &models.ApplicationViewPage{
		Items:  items,
		Total:  result.Total,
		Limit:  result.Limit,
		Offset: result.Offset,
	}, nil
}

func (s *Service) checkCompany(ctx context.Context, actor models.Actor, companyID string) error {
	ownerID, err := s.directory.CompanyOwner(ctx, companyID)
	if errors.Is(err, errors.ErrCodeNotFound) {
		return errors.NewCompanyNotOwnedError(companyID)
	}
	if err != nil {
		return err
	}
	return OwnsCompany(actor, companyID, ownerID)
}

func (s *Service) validateDetails(details interface{}) []errors.FieldError {
	result, err := s.validator.Validate(details)
	if err != nil {
		return []errors.FieldError{{Field: "businessDetails", Message: err.Error()}}
	}
	fields := make([]errors.FieldError, 0, len(result.Errors))
	for _, e := range result.Errors {
		fields = append(fields, errors.FieldError{Field: e.Field, Message: e.Message})
	}
	return fields
}

func (s *Service) recordTransition(ctx context.Context, transition string, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(errors.CodeOf(err))
	}
	metrics.LifecycleTransitions.WithLabelValues(transition, outcome).Inc()
	s.obs.RecordTransition(ctx, transition, outcome)
}

func (s *Service) startSpan(ctx context.Context, op, id string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "lifecycle."+op)
	if id != "" {
		span.SetAttributes(attribute.String("permohonan.id", id))
	}
	return ctx, span
}

func (s *Service) endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.CodeOf(err)))
	}
	span.End()
}
