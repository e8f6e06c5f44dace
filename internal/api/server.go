// Package api exposes the lifecycle and attachment operations over HTTP.
// Callers are authenticated upstream; the gateway forwards the user id in
// the X-User-ID header.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/models"
	"permohonan-service/internal/services/attachment"
	"permohonan-service/internal/services/lifecycle"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const ActorHeader = "X-User-ID"

type Lifecycle interface {
	CreateDraft(ctx context.Context, actor models.Actor, in lifecycle.CreateDraftInput) (*models.Application, error)
	UpdateDraft(ctx context.Context, actor models.Actor, id string, patch models.ApplicationPatch) (*models.Application, error)
	Completeness(ctx context.Context, actor models.Actor, id string) (*models.Completeness, error)
	Submit(ctx context.Context, actor models.Actor, id string) (*models.Application, error)
	Cancel(ctx context.Context, actor models.Actor, id, reason string) (*models.Application, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.ApplicationView, error)
	ListForUser(ctx context.Context, actor models.Actor, filter models.ApplicationFilter, page models.Page) (*models.ApplicationViewPage, error)
}

type Attachments interface {
	Upload(ctx context.Context, actor models.Actor, in attachment.UploadInput) (*models.ApplicationDocument, error)
	Delete(ctx context.Context, actor models.Actor, documentID string) error
}

type Catalog interface {
	GetLicenseTypes(ctx context.Context) ([]models.LicenseType, error)
	GetDocumentRequirements(ctx context.Context, licenseTypeID string) ([]models.DocumentRequirement, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	lifecycle     Lifecycle
	attachments   Attachments
	catalog       Catalog
	checks        map[string]ReadinessCheck
	maxUploadSize int64
	errors        *errors.ErrorHandler
	logger        logger.Logger
}

func New(lc Lifecycle, attachments Attachments, catalog Catalog, maxUploadSize int64, checks map[string]ReadinessCheck, log logger.Logger) *Server {
	log = log.WithFields(map[string]interface{}{"component": "http-api"})
	return &Server{
		lifecycle:     lc,
		attachments:   attachments,
		catalog:       catalog,
		checks:        checks,
		maxUploadSize: maxUploadSize,
		errors:        errors.NewErrorHandler(log),
		logger:        log,
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireActor)

		r.Get("/license-types", s.listLicenseTypes)
		r.Get("/license-types/{licenseTypeID}/requirements", s.listRequirements)

		r.Route("/permohonan", func(r chi.Router) {
			r.Post("/", s.createDraft)
			r.Get("/", s.listApplications)
			r.Route("/{permohonanID}", func(r chi.Router) {
				r.Get("/", s.getApplication)
				r.Patch("/", s.updateDraft)
				r.Get("/completeness", s.completeness)
				r.Post("/submit", s.submit)
				r.Post("/cancel", s.cancel)
				r.Post("/documents", s.upload)
			})
		})
		r.Delete("/documents/{documentID}", s.deleteDocument)
	})
	return r
}

type actorKey struct{}

func (s *Server) requireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(ActorHeader)
		if userID == "" {
			s.errors.HandleRequestError(w, r, errors.NewUnauthenticatedError())
			return
		}
		if _, err := uuid.Parse(userID); err != nil {
			s.errors.HandleRequestError(w, r, errors.NewValidationFailedError([]errors.FieldError{
				{Field: ActorHeader, Message: "must be a UUID"},
			}))
			return
		}
		ctx := context.WithValue(r.Context(), actorKey{}, models.Actor{UserID: userID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(r *http.Request) models.Actor {
	actor, _ := r.Context().Value(actorKey{}).(models.Actor)
	return actor
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("readiness check failed", map[string]interface{}{"failed": failed})
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "not ready", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, out interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errors.NewValidationFailedError([]errors.FieldError{{Field: "body", Message: err.Error()}})
	}
	return nil
}
