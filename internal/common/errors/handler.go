package errors

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorHandler renders failures for API callers with standardized error handling.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Response is the JSON body written for every failed request.
type Response struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	Details  string                 `json:"details,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// HandleRequestError writes err to w. Typed failures are returned verbatim;
// anything else is logged with full context and hidden behind INTERNAL_ERROR.
func (h *ErrorHandler) HandleRequestError(w http.ResponseWriter, r *http.Request, err error) {
	stdErr, known := h.normalizeError(err)
	status := HTTPStatus(stdErr.Code)

	h.logError(r, stdErr, status, known)

	resp := Response{Code: stdErr.Code, Message: stdErr.Message}
	if known && status < http.StatusInternalServerError {
		resp.Details = stdErr.Details
		resp.Metadata = stdErr.Metadata
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// normalizeError ensures we always have a StandardError
func (h *ErrorHandler) normalizeError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if As(err, &stdErr) {
		return stdErr, true
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}, false
}

func (h *ErrorHandler) logError(r *http.Request, stdErr *StandardError, status int, known bool) {
	fields := map[string]interface{}{
		"method":        r.Method,
		"path":          r.URL.Path,
		"status":        status,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"errorCategory": GetErrorCategory(stdErr.Code),
		"classified":    known,
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields)
		return
	}
	h.logger.Warn("request rejected", fields)
}

// HTTPStatus maps an error code to the status returned to API callers.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case ErrCodeNotOwner, ErrCodeCompanyNotOwned:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeNotDraft, ErrCodePermohonanNotDraft, ErrCodeDocumentAlreadyValidated:
		return http.StatusConflict
	case ErrCodeIncomplete, ErrCodeIdentityNotVerified, ErrCodeInvalidLicenseType,
		ErrCodeInvalidFileType, ErrCodeValidationFailed, ErrCodeInvalidRequirement:
		return http.StatusUnprocessableEntity
	case ErrCodeFileSizeExceeded:
		return http.StatusRequestEntityTooLarge
	case ErrCodeExternalServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
