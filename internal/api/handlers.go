package api

import (
	"net/http"
	"strconv"

	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/models"
	"permohonan-service/internal/services/attachment"
	"permohonan-service/internal/services/lifecycle"

	"github.com/go-chi/chi/v5"
)

func (s *Server) listLicenseTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.catalog.GetLicenseTypes(r.Context())
	if err != nil {
		s.errors.HandleRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (s *Server) listRequirements(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.catalog.GetDocumentRequirements(r.Context(), chi.URLParam(r, "licenseTypeID"))
	if err != nil {
		s.errors.HandleRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

func (s *Server) createDraft(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.CreateDraftInput
	if err := decodeJSON(r, &in); err != nil {
		s.errors.HandleRequestError(w, r, err)
		return
	}
	app, err := s.lifecycle.CreateDraft(r.Context(), actorFrom(r), in)
	if err != nil {
		s.errors.HandleRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (s *Server) listApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var fields []errors.FieldError
	page := models.Page{}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &page.Limit}, {"offset", &page.Offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fields = append(fields, errors.FieldError{Field: p.name, Message: "must be a non-negative integer"})
			continue
		}
		*p.dst = n
	}
	if len(fields) > 0 {
		s.errors.HandleRequestError(w, r, errors.NewValidationFailedError(fields))
		return
	}

	filter := models.ApplicationFilter{
		Status:        models.Status(q.Get("status")),
		LicenseTypeID: q.Get("licenseTypeId"),
	}
	result, err := s.lifecycle.ListForUser(r.Context(), actorFrom(r), filter, page)
	if err != nil {
		s.errors.HandleRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getApplication(w http.ResponseWriter, r *http.Request) {
	view, err := s.lifecycle.Get(r.Context(), actorFrom(r), chi.URLParam(r, "permohonanID"))
	if err != nil {
		s.errors.HandleRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) updateDraft(w http.ResponseWriter, r *http.Request) {
	var patch models.ApplicationPatch
	if err := decodeJSON(r, &patch); err != nil {
		s.errors.HandleRequestError(w, r, err)
		return
	}
	app, err := s.lifecycle.UpdateDraft(r.Context(), actorFrom(r), chi.URLParam(r, "permohonanID"), patch)
	if err != nil {
		s.errors.HandleRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (s *Server) completeness(w http.ResponseWriter, r *http.Request) {
	c, err := s.lifecycle.Completeness(r.Context(), actorFrom(r), chi.URLParam(r, "permohonanID"))
	if err != nil {
		s.errors.HandleRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	app, err := s.lifecycle.Submit(r.Context(), actorFrom(r), chi.URLParam(r, "permohonanID"))
	if err != nil {
		s.errors.HandleRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.errors.HandleRequestError(w, r, err)
			return
		}
	}
	// a failed audit write is reported even though the status already changed
	app, err := s.lifecycle.Cancel(r.Context(), actorFrom(r), chi.URLParam(r, "permohonanID"), req.Reason)
	if err != nil {
		s.errors.HandleRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// multipartOverhead bounds the non-file part of an upload request.
const multipartOverhead = 1 << 20

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	if s.maxUploadSize > 0 {
		if r.ContentLength > s.maxUploadSize+multipartOverhead {
			s.errors.HandleRequestError(w, r, errors.NewFileSizeExceededError(r.ContentLength, s.maxUploadSize))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.errors.HandleRequestError(w, r, errors.NewFileSizeExceededError(tooLarge.Limit+1, s.maxUploadSize))
			return
		}
		s.errors.HandleRequestError(w, r, errors.NewValidationFailedError([]errors.FieldError{{Field: "body", Message: "expected multipart/form-data"}}))
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile("file")
	if err != nil {
		s.errors.HandleRequestError(w, r, errors.NewValidationFailedError([]errors.FieldError{{Field: "file", Message: "is required"}}))
		return
	}
	defer file.Close()

	doc, err := s.attachments.Upload(r.Context(), actorFrom(r), attachment.UploadInput{
		PermohonanID:  chi.URLParam(r, "permohonanID"),
		RequirementID: r.FormValue("requirementId"),
		Filename:      header.Filename,
		Size:          header.Size,
		Content:       file,
	})
	if err != nil {
		s.errors.HandleRequestError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.attachments.Delete(r.Context(), actorFrom(r), chi.URLParam(r, "documentID")); err != nil {
		s.errors.HandleRequestError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
