// Package errors provides the typed failure taxonomy shared by the lifecycle,
// attachment and dispatch layers.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents a stable, machine-readable failure code.
type ErrorCode string

// Authorization / lifecycle errors
const (
	ErrCodeUnauthenticated     ErrorCode = "UNAUTHENTICATED"
	ErrCodeNotOwner            ErrorCode = "NOT_OWNER"
	ErrCodeNotDraft            ErrorCode = "NOT_DRAFT"
	ErrCodeIncomplete          ErrorCode = "INCOMPLETE"
	ErrCodeIdentityNotVerified ErrorCode = "IDENTITY_NOT_VERIFIED"
	ErrCodeCompanyNotOwned     ErrorCode = "COMPANY_NOT_OWNED"
	ErrCodeInvalidLicenseType  ErrorCode = "INVALID_LICENSE_TYPE"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
)

// Document errors
const (
	ErrCodePermohonanNotDraft       ErrorCode = "PERMOHONAN_NOT_DRAFT"
	ErrCodeInvalidFileType          ErrorCode = "INVALID_FILE_TYPE"
	ErrCodeFileSizeExceeded         ErrorCode = "FILE_SIZE_EXCEEDED"
	ErrCodeDocumentAlreadyValidated ErrorCode = "DOCUMENT_ALREADY_VALIDATED"
	ErrCodeInvalidRequirement       ErrorCode = "INVALID_REQUIREMENT"
)

// Infrastructure errors
const (
	ErrCodeExternalServiceUnavailable ErrorCode = "EXTERNAL_SERVICE_UNAVAILABLE"
	ErrCodeDatabaseFailed             ErrorCode = "DATABASE_FAILED"
	ErrCodeStorageFailed              ErrorCode = "STORAGE_FAILED"
	ErrCodeGatewayFailed              ErrorCode = "GATEWAY_FAILED"
	ErrCodeInternal                   ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidTaskPayload         ErrorCode = "INVALID_TASK_PAYLOAD"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// WithMetadata attaches a structured detail and returns the receiver.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

func NewUnauthenticatedError() *StandardError {
	return newError(ErrCodeUnauthenticated, "Authentication required", "", false)
}

// NewNotOwnerError creates a non-retryable authorization error.
func NewNotOwnerError(permohonanID string) *StandardError {
	return newError(ErrCodeNotOwner,
		"You are not the owner of this application",
		fmt.Sprintf("permohonanId: %s", permohonanID), false)
}

// NewNotDraftError is returned when a lifecycle operation targets a non-draft application.
func NewNotDraftError(permohonanID, status string) *StandardError {
	return newError(ErrCodeNotDraft,
		"Application is no longer a draft",
		fmt.Sprintf("permohonanId: %s, status: %s", permohonanID, status), false).
		WithMetadata("status", status)
}

// NewIncompleteError carries the labels of the unmet mandatory requirements.
func NewIncompleteError(missing []string) *StandardError {
	return newError(ErrCodeIncomplete,
		"Mandatory documents are missing",
		strings.Join(missing, ", "), false).
		WithMetadata("missing", missing)
}

func NewIdentityNotVerifiedError(userID string) *StandardError {
	return newError(ErrCodeIdentityNotVerified,
		"Identity must be verified before submitting",
		fmt.Sprintf("userId: %s", userID), false)
}

func NewCompanyNotOwnedError(companyID string) *StandardError {
	return newError(ErrCodeCompanyNotOwned,
		"Company does not belong to the current user",
		fmt.Sprintf("companyId: %s", companyID), false)
}

func NewInvalidLicenseTypeError(licenseTypeID string) *StandardError {
	return newError(ErrCodeInvalidLicenseType,
		"License type not found in catalog",
		fmt.Sprintf("licenseTypeId: %s", licenseTypeID), false)
}

func NewNotFoundError(entity, id string) *StandardError {
	return newError(ErrCodeNotFound,
		fmt.Sprintf("%s not found", entity),
		fmt.Sprintf("id: %s", id), false)
}

// NewValidationFailedError enumerates each offending field in Metadata["fields"].
func NewValidationFailedError(fields []FieldError) *StandardError {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return newError(ErrCodeValidationFailed,
		"Request validation failed",
		strings.Join(parts, "; "), false).
		WithMetadata("fields", fields)
}

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func NewPermohonanNotDraftError(permohonanID, status string) *StandardError {
	return newError(ErrCodePermohonanNotDraft,
		"Documents can only be changed while the application is a draft",
		fmt.Sprintf("permohonanId: %s, status: %s", permohonanID, status), false).
		WithMetadata("status", status)
}

func NewInvalidFileTypeError(actual string, allowed []string) *StandardError {
	return newError(ErrCodeInvalidFileType,
		fmt.Sprintf("File type %s is not allowed. Allowed types: %s", actual, strings.Join(allowed, ", ")),
		fmt.Sprintf("actual: %s", actual), false).
		WithMetadata("actual", actual).
		WithMetadata("allowed", allowed)
}

func NewFileSizeExceededError(actual, max int64) *StandardError {
	return newError(ErrCodeFileSizeExceeded,
		fmt.Sprintf("File is %s, maximum allowed is %s", HumanBytes(actual), HumanBytes(max)),
		fmt.Sprintf("actual: %d, max: %d", actual, max), false).
		WithMetadata("actual", actual).
		WithMetadata("max", max)
}

func NewDocumentAlreadyValidatedError(documentID string) *StandardError {
	return newError(ErrCodeDocumentAlreadyValidated,
		"Document has already been validated and cannot be removed",
		fmt.Sprintf("documentId: %s", documentID), false)
}

func NewInvalidRequirementError(requirementID, licenseTypeID string) *StandardError {
	return newError(ErrCodeInvalidRequirement,
		"Document requirement does not apply to this license type",
		fmt.Sprintf("requirementId: %s, licenseTypeId: %s", requirementID, licenseTypeID), false)
}

// NewExternalServiceUnavailableError wraps a failed synchronous dependency call.
func NewExternalServiceUnavailableError(service string, err error) *StandardError {
	e := newError(ErrCodeExternalServiceUnavailable,
		fmt.Sprintf("External service '%s' is unavailable", service),
		err.Error(), true)
	e.cause = err
	return e
}

func NewDatabaseError(operation string, err error) *StandardError {
	e := newError(ErrCodeDatabaseFailed,
		"Database operation failed",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true)
	e.cause = err
	return e
}

func NewStorageError(operation string, err error) *StandardError {
	e := newError(ErrCodeStorageFailed,
		"Document storage operation failed",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true)
	e.cause = err
	return e
}

// NewGatewayError classifies a downstream delivery failure. 4xx responses are permanent.
func NewGatewayError(gateway string, statusCode int, err error) *StandardError {
	retryable := statusCode == 0 || statusCode == 408 || statusCode == 429 || statusCode >= 500
	e := newError(ErrCodeGatewayFailed,
		fmt.Sprintf("Gateway '%s' delivery failed", gateway),
		err.Error(), retryable).
		WithMetadata("statusCode", statusCode)
	e.cause = err
	return e
}

// NewInvalidTaskPayloadError marks a queued task that can never be processed.
func NewInvalidTaskPayloadError(taskType string, err error) *StandardError {
	e := newError(ErrCodeInvalidTaskPayload,
		"Side-effect task payload is malformed",
		fmt.Sprintf("taskType: %s, error: %s", taskType, err.Error()), false)
	e.cause = err
	return e
}

// ==========================
// 3. Utility Functions
// ==========================

// CodeOf returns the ErrorCode carried by err, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Code == code
}

// IsRetryable reports whether a unit of work failing with err may succeed on retry.
// Unclassified errors are treated as transient.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return true
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeUnauthenticated, ErrCodeNotOwner, ErrCodeCompanyNotOwned, ErrCodeIdentityNotVerified:
		return "AUTHORIZATION"
	case ErrCodeNotDraft, ErrCodePermohonanNotDraft, ErrCodeIncomplete, ErrCodeDocumentAlreadyValidated:
		return "LIFECYCLE"
	case ErrCodeInvalidFileType, ErrCodeFileSizeExceeded, ErrCodeValidationFailed,
		ErrCodeInvalidLicenseType, ErrCodeInvalidRequirement:
		return "VALIDATION"
	case ErrCodeExternalServiceUnavailable, ErrCodeGatewayFailed:
		return "EXTERNAL"
	case ErrCodeDatabaseFailed, ErrCodeStorageFailed, ErrCodeInvalidTaskPayload:
		return "INFRASTRUCTURE"
	case ErrCodeNotFound:
		return "NOT_FOUND"
	default:
		return "OTHER"
	}
}

// HumanBytes renders a byte count the way upload limits are configured (e.g. "10MB").
func HumanBytes(n int64) string {
	const unit = 1024
	switch {
	case n >= unit*unit && n%(unit*unit) == 0:
		return fmt.Sprintf("%dMB", n/(unit*unit))
	case n >= unit*unit:
		return fmt.Sprintf("%.1fMB", float64(n)/(unit*unit))
	case n >= unit:
		return fmt.Sprintf("%dKB", n/unit)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

// As is errors.As, re-exported so callers importing this package need not alias the stdlib.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
