package audit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"permohonan-service/internal/common/config"
	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var occurred = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func sampleEntry() models.AuditEntry {
	actor := "u-1"
	return models.AuditEntry{
		Key:        "ev-1:permohonan_cancelled",
		Action:     models.ActionPermohonanCancelled,
		EntityType: models.EntityPermohonan,
		EntityID:   "p-1",
		ActorID:    &actor,
		Metadata:   map[string]interface{}{"reason": "duplicate"},
		OccurredAt: occurred,
	}
}

func TestPostgresSink_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO audit_log .* ON CONFLICT \(idempotency_key\) DO NOTHING`).
		WithArgs("ev-1:permohonan_cancelled", "permohonan_cancelled", "permohonan", "p-1", "u-1",
			[]byte(`{"reason":"duplicate"}`), occurred).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewPostgresSink(db).Record(context.Background(), sampleEntry()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_SystemEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs(nil, "send_submission_notification_failed", "permohonan", "p-1", nil, []byte(`{}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewPostgresSink(db).Record(context.Background(), models.AuditEntry{
		Action:     models.FailedAction("send_submission_notification"),
		EntityType: models.EntityPermohonan,
		EntityID:   "p-1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_Failure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnError(io.ErrUnexpectedEOF)

	err = NewPostgresSink(db).Record(context.Background(), sampleEntry())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDatabaseFailed))
}

func newESClient(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestElasticsearchSink_Record(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		doc  map[string]interface{}
	)
	client := newESClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&doc)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	err := NewElasticsearchSink(client, "audit-test").Record(context.Background(), sampleEntry())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasPrefix(path, "/audit-test/_doc/"), path)
	assert.Contains(t, path, "ev-1")
	assert.Equal(t, "permohonan_cancelled", doc["action"])
	assert.Equal(t, "p-1", doc["entity_id"])
	assert.Equal(t, "duplicate", doc["metadata"].(map[string]interface{})["reason"])
}

func TestElasticsearchSink_ServerError(t *testing.T) {
	client := newESClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"unavailable"}`))
	})

	err := NewElasticsearchSink(client, "").Record(context.Background(), sampleEntry())
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestNew_SelectsBackend(t *testing.T) {
	log := logger.NewTestLogger(t)
	pg := &PostgresSink{}
	es := &ElasticsearchSink{}

	tests := []struct {
		name    string
		cfg     config.AuditConfig
		want    Sink
		wantErr bool
	}{
		{name: "disabled", cfg: config.AuditConfig{Enabled: false}},
		{name: "default postgres", cfg: config.AuditConfig{Enabled: true}, want: pg},
		{name: "elasticsearch", cfg: config.AuditConfig{Enabled: true, Backend: "elasticsearch"}, want: es},
		{name: "unknown", cfg: config.AuditConfig{Enabled: true, Backend: "kafka"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := New(tt.cfg, Backends{Postgres: pg, Elasticsearch: es}, log)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.IsType(t, &NoopSink{}, sink)
				assert.NoError(t, sink.Record(context.Background(), sampleEntry()))
				return
			}
			assert.Same(t, tt.want, sink)
		})
	}
}
