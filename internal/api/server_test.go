package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/models"
	"permohonan-service/internal/services/attachment"
	"permohonan-service/internal/services/lifecycle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockLifecycle struct {
	CreateDraftFunc  func(ctx context.Context, actor models.Actor, in lifecycle.CreateDraftInput) (*models.Application, error)
	UpdateDraftFunc  func(ctx context.Context, actor models.Actor, id string, patch models.ApplicationPatch) (*models.Application, error)
	CompletenessFunc func(ctx context.Context, actor models.Actor, id string) (*models.Completeness, error)
	SubmitFunc       func(ctx context.Context, actor models.Actor, id string) (*models.Application, error)
	CancelFunc       func(ctx context.Context, actor models.Actor, id, reason string) (*models.Application, error)
	GetFunc          func(ctx context.Context, actor models.Actor, id string) (*models.ApplicationView, error)
	ListForUserFunc  func(ctx context.Context, actor models.Actor, filter models.ApplicationFilter, page models.Page) (*models.ApplicationViewPage, error)
}

func (m *MockLifecycle) CreateDraft(ctx context.Context, actor models.Actor, in lifecycle.CreateDraftInput) (*models.Application, error) {
	return m.CreateDraftFunc(ctx, actor, in)
}

func (m *MockLifecycle) UpdateDraft(ctx context.Context, actor models.Actor, id string, patch models.ApplicationPatch) (*models.Application, error) {
	return m.UpdateDraftFunc(ctx, actor, id, patch)
}

func (m *MockLifecycle) Completeness(ctx context.Context, actor models.Actor, id string) (*models.Completeness, error) {
	return m.CompletenessFunc(ctx, actor, id)
}

func (m *MockLifecycle) Submit(ctx context.Context, actor models.Actor, id string) (*models.Application, error) {
	return m.SubmitFunc(ctx, actor, id)
}

func (m *MockLifecycle) Cancel(ctx context.Context, actor models.Actor, id, reason string) (*models.Application, error) {
	return m.CancelFunc(ctx, actor, id, reason)
}

func (m *MockLifecycle) Get(ctx context.Context, actor models.Actor, id string) (*models.ApplicationView, error) {
	return m.GetFunc(ctx, actor, id)
}

func (m *MockLifecycle) ListForUser(ctx context.Context, actor models.Actor, filter models.ApplicationFilter, page models.Page) (*models.ApplicationViewPage, error) {
	return m.ListForUserFunc(ctx, actor, filter, page)
}

type MockAttachments struct {
	UploadFunc func(ctx context.Context, actor models.Actor, in attachment.UploadInput) (*models.ApplicationDocument, error)
	DeleteFunc func(ctx context.Context, actor models.Actor, documentID string) error
}

func (m *MockAttachments) Upload(ctx context.Context, actor models.Actor, in attachment.UploadInput) (*models.ApplicationDocument, error) {
	return m.UploadFunc(ctx, actor, in)
}

func (m *MockAttachments) Delete(ctx context.Context, actor models.Actor, documentID string) error {
	return m.DeleteFunc(ctx, actor, documentID)
}

type MockCatalog struct {
	GetLicenseTypesFunc func(ctx context.Context) ([]models.LicenseType, error)
}

func (m *MockCatalog) GetLicenseTypes(ctx context.Context) ([]models.LicenseType, error) {
	return m.GetLicenseTypesFunc(ctx)
}

func (m *MockCatalog) GetDocumentRequirements(_ context.Context, id string) ([]models.DocumentRequirement, error) {
	return []models.DocumentRequirement{{ID: "R1", LicenseTypeID: id, Name: "Sijil SSM", Mandatory: true}}, nil
}

// ==========================
// Test Helper Functions
// ==========================

const (
	tenMB    = 10 * 1024 * 1024
	testUser = "3f6b9d1e-4a2c-4e8f-b0d7-5c1a9e3f7b21"
)

var fixedTime = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, lc *MockLifecycle, att *MockAttachments, checks map[string]ReadinessCheck) http.Handler {
	if lc == nil {
		lc = &MockLifecycle{}
	}
	if att == nil {
		att = &MockAttachments{}
	}
	cat := &MockCatalog{GetLicenseTypesFunc: func(ctx context.Context) ([]models.LicenseType, error) {
		return []models.LicenseType{{ID: "L1", Name: "Lesen Perniagaan"}}, nil
	}}
	return New(lc, att, cat, tenMB, checks, logger.NewTestLogger(t)).Routes()
}

func do(h http.Handler, method, path, user string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if user != "" {
		req.Header.Set(ActorHeader, user)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errors.Response {
	var resp errors.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func multipartBody(t *testing.T, requirementID, filename string, content []byte) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("requirementId", requirementID))
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// ==========================
// Tests
// ==========================

func TestRoutes_RequireActor(t *testing.T) {
	h := newTestServer(t, nil, nil, nil)
	rec := do(h, http.MethodGet, "/api/v1/permohonan", "", nil, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, errors.ErrCodeUnauthenticated, decodeError(t, rec).Code)
}

func TestRoutes_MalformedActorIsRejected(t *testing.T) {
	lc := &MockLifecycle{ListForUserFunc: func(context.Context, models.Actor, models.ApplicationFilter, models.Page) (*models.ApplicationViewPage, error) {
		t.Fatal("request reached the service")
		return nil, nil
	}}
	rec := do(newTestServer(t, lc, nil, nil), http.MethodGet, "/api/v1/permohonan", "u-1", nil, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, errors.ErrCodeValidationFailed, resp.Code)
}

func TestHealthAndReady(t *testing.T) {
	healthy := newTestServer(t, nil, nil, map[string]ReadinessCheck{
		"postgres": func(ctx context.Context) error { return nil },
	})
	assert.Equal(t, http.StatusOK, do(healthy, http.MethodGet, "/health", "", nil, "").Code)
	assert.Equal(t, http.StatusOK, do(healthy, http.MethodGet, "/ready", "", nil, "").Code)

	degraded := newTestServer(t, nil, nil, map[string]ReadinessCheck{
		"redis": func(ctx context.Context) error { return fmt.Errorf("dial tcp: connection refused") },
	})
	rec := do(degraded, http.MethodGet, "/ready", "", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")

	assert.Equal(t, http.StatusOK, do(healthy, http.MethodGet, "/metrics", "", nil, "").Code)
}

func TestCreateDraft(t *testing.T) {
	var got lifecycle.CreateDraftInput
	lc := &MockLifecycle{CreateDraftFunc: func(ctx context.Context, actor models.Actor, in lifecycle.CreateDraftInput) (*models.Application, error) {
		assert.Equal(t, testUser, actor.UserID)
		got = in
		return &models.Application{ID: "p-1", UserID: actor.UserID, CompanyID: in.CompanyID, Status: models.StatusDraft, CreatedAt: fixedTime}, nil
	}}
	h := newTestServer(t, lc, nil, nil)

	body := `{"companyId":"c-1","licenseTypeId":"L1","businessDetails":{"businessName":"Kedai A","employeeCount":2}}`
	rec := do(h, http.MethodPost, "/api/v1/permohonan", testUser, bytes.NewBufferString(body), "application/json")

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "c-1", got.CompanyID)
	assert.Equal(t, "Kedai A", got.BusinessDetails.BusinessName)
	assert.Contains(t, rec.Body.String(), `"status":"draft"`)
}

func TestCreateDraft_MalformedBody(t *testing.T) {
	h := newTestServer(t, nil, nil, nil)
	rec := do(h, http.MethodPost, "/api/v1/permohonan", testUser, bytes.NewBufferString(`{"companyId":`), "application/json")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, errors.ErrCodeValidationFailed, decodeError(t, rec).Code)
}

func TestSubmit_TypedErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   errors.ErrorCode
	}{
		{name: "incomplete", err: errors.NewIncompleteError([]string{"Sijil SSM"}), wantStatus: http.StatusUnprocessableEntity, wantCode: errors.ErrCodeIncomplete},
		{name: "not owner", err: errors.NewNotOwnerError("p-1"), wantStatus: http.StatusForbidden, wantCode: errors.ErrCodeNotOwner},
		{name: "not draft", err: errors.NewNotDraftError("p-1", "cancelled"), wantStatus: http.StatusConflict, wantCode: errors.ErrCodeNotDraft},
		{name: "catalog down", err: errors.NewExternalServiceUnavailableError("catalog", fmt.Errorf("timeout")), wantStatus: http.StatusServiceUnavailable, wantCode: errors.ErrCodeExternalServiceUnavailable},
		{name: "unclassified", err: fmt.Errorf("pq: password authentication failed"), wantStatus: http.StatusInternalServerError, wantCode: errors.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := &MockLifecycle{SubmitFunc: func(ctx context.Context, actor models.Actor, id string) (*models.Application, error) {
				return nil, tt.err
			}}
			rec := do(newTestServer(t, lc, nil, nil), http.MethodPost, "/api/v1/permohonan/p-1/submit", testUser, nil, "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotContains(t, rec.Body.String(), "password")
		})
	}
}

func TestSubmit_IncompleteListsMissing(t *testing.T) {
	lc := &MockLifecycle{SubmitFunc: func(ctx context.Context, actor models.Actor, id string) (*models.Application, error) {
		return nil, errors.NewIncompleteError([]string{"Sijil SSM", "Pelan Lantai"})
	}}
	rec := do(newTestServer(t, lc, nil, nil), http.MethodPost, "/api/v1/permohonan/p-1/submit", testUser, nil, "")

	resp := decodeError(t, rec)
	assert.Equal(t, []interface{}{"Sijil SSM", "Pelan Lantai"}, resp.Metadata["missing"])
}

func TestCancel_PassesReason(t *testing.T) {
	lc := &MockLifecycle{CancelFunc: func(ctx context.Context, actor models.Actor, id, reason string) (*models.Application, error) {
		assert.Equal(t, "p-1", id)
		assert.Equal(t, "salah jenis lesen", reason)
		return &models.Application{ID: id, Status: models.StatusCancelled}, nil
	}}
	rec := do(newTestServer(t, lc, nil, nil), http.MethodPost, "/api/v1/permohonan/p-1/cancel", testUser,
		bytes.NewBufferString(`{"reason":"salah jenis lesen"}`), "application/json")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListApplications_QueryParsing(t *testing.T) {
	lc := &MockLifecycle{ListForUserFunc: func(ctx context.Context, actor models.Actor, filter models.ApplicationFilter, page models.Page) (*models.ApplicationViewPage, error) {
		assert.Equal(t, models.StatusSubmitted, filter.Status)
		assert.Equal(t, "L1", filter.LicenseTypeID)
		assert.Equal(t, models.Page{Limit: 5, Offset: 10}, page)
		return &models.ApplicationViewPage{Items: []models.ApplicationView{}, Total: 0, Limit: 5, Offset: 10}, nil
	}}
	h := newTestServer(t, lc, nil, nil)

	rec := do(h, http.MethodGet, "/api/v1/permohonan?status=submitted&licenseTypeId=L1&limit=5&offset=10", testUser, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/api/v1/permohonan?limit=lots", testUser, nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpload_Multipart(t *testing.T) {
	pdf := []byte("%PDF-1.4\n%%EOF\n")
	att := &MockAttachments{UploadFunc: func(ctx context.Context, actor models.Actor, in attachment.UploadInput) (*models.ApplicationDocument, error) {
		assert.Equal(t, "p-1", in.PermohonanID)
		assert.Equal(t, "R1", in.RequirementID)
		assert.Equal(t, "ssm.pdf", in.Filename)
		assert.Equal(t, int64(len(pdf)), in.Size)
		content, err := io.ReadAll(in.Content)
		require.NoError(t, err)
		assert.Equal(t, pdf, content)
		return &models.ApplicationDocument{ID: "d-1", PermohonanID: in.PermohonanID, ValidationStatus: models.DocumentUnverified}, nil
	}}
	body, ct := multipartBody(t, "R1", "ssm.pdf", pdf)
	rec := do(newTestServer(t, nil, att, nil), http.MethodPost, "/api/v1/permohonan/p-1/documents", testUser, body, ct)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"d-1"`)
}

func TestUpload_OversizeRequestRejectedBeforeParsing(t *testing.T) {
	att := &MockAttachments{UploadFunc: func(ctx context.Context, actor models.Actor, in attachment.UploadInput) (*models.ApplicationDocument, error) {
		t.Fatal("upload must not be reached")
		return nil, nil
	}}
	body, ct := multipartBody(t, "R1", "scan.pdf", make([]byte, 15*1024*1024))
	rec := do(newTestServer(t, nil, att, nil), http.MethodPost, "/api/v1/permohonan/p-1/documents", testUser, body, ct)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, errors.ErrCodeFileSizeExceeded, resp.Code)
	assert.Equal(t, float64(tenMB), resp.Metadata["max"])
}

func TestUpload_MissingFile(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("requirementId", "R1"))
	require.NoError(t, mw.Close())

	rec := do(newTestServer(t, nil, nil, nil), http.MethodPost, "/api/v1/permohonan/p-1/documents", testUser, &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDeleteDocument(t *testing.T) {
	att := &MockAttachments{DeleteFunc: func(ctx context.Context, actor models.Actor, documentID string) error {
		if documentID == "d-verified" {
			return errors.NewDocumentAlreadyValidatedError(documentID)
		}
		return nil
	}}
	h := newTestServer(t, nil, att, nil)

	assert.Equal(t, http.StatusNoContent, do(h, http.MethodDelete, "/api/v1/documents/d-1", testUser, nil, "").Code)

	rec := do(h, http.MethodDelete, "/api/v1/documents/d-verified", testUser, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, errors.ErrCodeDocumentAlreadyValidated, decodeError(t, rec).Code)
}

func TestLicenseTypes(t *testing.T) {
	h := newTestServer(t, nil, nil, nil)

	rec := do(h, http.MethodGet, "/api/v1/license-types", testUser, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Lesen Perniagaan")

	rec = do(h, http.MethodGet, "/api/v1/license-types/L1/requirements", testUser, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sijil SSM")
}
