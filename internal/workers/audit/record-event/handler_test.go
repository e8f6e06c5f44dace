// internal/workers/audit/record-event/handler_test.go
package recordevent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"testing"
	"time"

	"permohonan-service/internal/audit"
	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/dispatch"
	"permohonan-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auditTask(t *testing.T, entry models.AuditEntry) dispatch.Task {
	payload, err := json.Marshal(entry)
	require.NoError(t, err)
	return dispatch.Task{ID: "task-9", Type: TaskType, EntityID: entry.EntityID, Payload: payload}
}

func TestHandle_WritesIdempotentRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	actor := "u-1"
	entry := models.AuditEntry{
		Key:        "ev-1:permohonan_submitted",
		Action:     models.ActionPermohonanSubmitted,
		EntityType: models.EntityPermohonan,
		EntityID:   "p-1",
		ActorID:    &actor,
		Metadata:   map[string]interface{}{"licenseTypeId": "L1"},
		OccurredAt: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
	}

	query := regexp.QuoteMeta(`INSERT INTO audit_log`)
	mock.ExpectExec(query).
		WithArgs("ev-1:permohonan_submitted", models.ActionPermohonanSubmitted, models.EntityPermohonan, "p-1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// replay hits the unique key and inserts nothing
	mock.ExpectExec(query).
		WithArgs("ev-1:permohonan_submitted", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	h := NewHandler(audit.NewPostgresSink(db), time.Second, logger.NewTestLogger(t))
	require.NoError(t, h.Handle(context.Background(), auditTask(t, entry)))
	require.NoError(t, h.Handle(context.Background(), auditTask(t, entry)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandle_FallsBackToTaskID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO audit_log`)).
		WithArgs("task-9", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := NewHandler(audit.NewPostgresSink(db), 0, logger.NewTestLogger(t))
	require.NoError(t, h.Handle(context.Background(), auditTask(t, models.AuditEntry{Action: "x", EntityType: "permohonan", EntityID: "p-2"})))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandle_DatabaseErrorIsRetryable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO audit_log`)).WillReturnError(fmt.Errorf("connection reset"))

	h := NewHandler(audit.NewPostgresSink(db), time.Second, logger.NewTestLogger(t))
	err = h.Handle(context.Background(), auditTask(t, models.AuditEntry{Key: "k", Action: "x", EntityID: "p-3"}))
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestHandle_MalformedPayload(t *testing.T) {
	h := NewHandler(audit.NewNoopSink(nil), time.Second, logger.NewNoOpLogger())
	err := h.Handle(context.Background(), dispatch.Task{ID: "t", Type: TaskType, Payload: []byte(`[1,2]`)})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidTaskPayload))
}
