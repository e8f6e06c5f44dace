// internal/workers/submission/send-notification/handler_test.go
package sendnotification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"permohonan-service/internal/common/config"
	"permohonan-service/internal/common/errors"
	commonhttp "permohonan-service/internal/common/http"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/common/retry"
	"permohonan-service/internal/dispatch"
	"permohonan-service/internal/models"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

type MockSink struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (m *MockSink) Record(_ context.Context, entry models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// ==========================
// Test Helper Functions
// ==========================

var submittedAt = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func createTestEvent() models.SubmissionEvent {
	return models.SubmissionEvent{
		EventID:       "ev-1",
		ApplicationID: "p-1",
		UserID:        "u-1",
		CompanyID:     "c-1",
		LicenseTypeID: "L1",
		SubmittedAt:   submittedAt,
		BusinessDetails: models.BusinessDetails{
			BusinessName:  "Kedai Runcit Ali",
			EmployeeCount: 3,
		},
		OccurredAt: submittedAt,
	}
}

func createTestTask(t *testing.T, ev models.SubmissionEvent) dispatch.Task {
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return dispatch.Task{
		ID:         "task-1",
		Type:       TaskType,
		EntityType: models.EntityPermohonan,
		EntityID:   ev.ApplicationID,
		Payload:    payload,
	}
}

func newHTTPHandler(t *testing.T, url string) *Handler {
	cfg := LoadConfig(config.NotificationConfig{Backend: BackendHTTP, URL: url, RequestTimeout: 2000})
	h, err := NewHandler(cfg, Clients{HTTP: commonhttp.NewClient("notification-gateway", cfg.Timeout, 0)}, logger.NewTestLogger(t))
	require.NoError(t, err)
	return h
}

// ==========================
// Tests
// ==========================

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig(config.NotificationConfig{})
	assert.Equal(t, BackendHTTP, cfg.Backend)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
}

func TestNewHandler_RequiresBackendSettings(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		clients Clients
	}{
		{name: "http without url", cfg: &Config{Backend: BackendHTTP}, clients: Clients{HTTP: commonhttp.NewClient("n", time.Second, 0)}},
		{name: "sns without topic", cfg: &Config{Backend: BackendSNS}, clients: Clients{SNS: &MockSNSService{}}},
		{name: "ses without addresses", cfg: &Config{Backend: BackendSES}, clients: Clients{SES: &MockSESService{}}},
		{name: "unknown backend", cfg: &Config{Backend: "pigeon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHandler(tt.cfg, tt.clients, logger.NewNoOpLogger())
			assert.Error(t, err)
		})
	}
}

func TestHandle_HTTPDeliversSnapshot(t *testing.T) {
	var got Notification
	var idempotencyKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idempotencyKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	h := newHTTPHandler(t, server.URL)
	err := h.Handle(context.Background(), createTestTask(t, createTestEvent()))
	require.NoError(t, err)

	assert.Equal(t, "ev-1", idempotencyKey)
	assert.Equal(t, "p-1", got.ApplicationID)
	assert.Equal(t, "u-1", got.UserID)
	assert.Equal(t, "c-1", got.CompanyID)
	assert.Equal(t, "L1", got.LicenseTypeID)
	assert.True(t, submittedAt.Equal(got.SubmittedAt))
	assert.Equal(t, "Kedai Runcit Ali", got.BusinessDetails.BusinessName)
}

func TestHandle_HTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{status: http.StatusServiceUnavailable, retryable: true},
		{status: http.StatusTooManyRequests, retryable: true},
		{status: http.StatusBadRequest, retryable: false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := newHTTPHandler(t, server.URL).Handle(context.Background(), createTestTask(t, createTestEvent()))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeGatewayFailed))
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
		})
	}
}

func TestHandle_MalformedPayload(t *testing.T) {
	h := newHTTPHandler(t, "http://127.0.0.1:1")
	err := h.Handle(context.Background(), dispatch.Task{ID: "t", Type: TaskType, Payload: []byte(`{"submittedAt": 42}`)})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidTaskPayload))
	assert.False(t, errors.IsRetryable(err))
}

func TestHandle_SNSPublishesToTopic(t *testing.T) {
	var input *sns.PublishInput
	mockSNS := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			input = params
			return &sns.PublishOutput{}, nil
		},
	}
	cfg := LoadConfig(config.NotificationConfig{Backend: BackendSNS, TopicARN: "arn:aws:sns:ap-southeast-1:123:permohonan"})
	h, err := NewHandler(cfg, Clients{SNS: mockSNS}, logger.NewTestLogger(t))
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), createTestTask(t, createTestEvent())))
	require.NotNil(t, input)
	assert.Equal(t, "arn:aws:sns:ap-southeast-1:123:permohonan", *input.TopicArn)
	assert.Equal(t, "Permohonan p-1 submitted", *input.Subject)
	assert.Equal(t, "ev-1", *input.MessageAttributes["eventId"].StringValue)
	assert.Contains(t, *input.Message, `"applicationId":"p-1"`)
}

func TestHandle_SESFailureIsRetryable(t *testing.T) {
	calls := 0
	mockSES := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			calls++
			assert.Equal(t, []string{"lesen@majlis.gov.my"}, params.Destination.ToAddresses)
			assert.Contains(t, *params.Message.Body.Text.Data, "license type L1")
			return nil, fmt.Errorf("throttled")
		},
	}
	cfg := LoadConfig(config.NotificationConfig{Backend: BackendSES, FromEmail: "noreply@majlis.gov.my", OfficeEmail: "lesen@majlis.gov.my"})
	h, err := NewHandler(cfg, Clients{SES: mockSES}, logger.NewTestLogger(t))
	require.NoError(t, err)

	err = h.Handle(context.Background(), createTestTask(t, createTestEvent()))
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, 1, calls)
}

// A gateway that keeps failing is attempted three times and the failure is
// audited; the caller never sees it.
func TestDispatch_NotificationExhaustionIsAudited(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sink := &MockSink{}
	policy := retry.Policy{MaxAttempts: 3, Backoff: []time.Duration{5 * time.Millisecond, 10 * time.Millisecond}}
	d := dispatch.New(dispatch.NewMemoryQueue(), sink, policy, logger.NewTestLogger(t),
		dispatch.WithPollTimeout(20*time.Millisecond), dispatch.WithPromoteInterval(5*time.Millisecond))
	d.Register(TaskType, newHTTPHandler(t, server.URL))

	require.NoError(t, d.DispatchSubmission(context.Background(), createTestEvent()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx, 1)
		close(done)
	}()
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.entries) > 0
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	require.Len(t, sink.entries, 1)
	entry := sink.entries[0]
	assert.Equal(t, "send_submission_notification_failed", entry.Action)
	assert.Equal(t, "p-1", entry.EntityID)
	assert.Equal(t, 3, entry.Metadata["attempt"])
	assert.Contains(t, entry.Metadata["error"], "502")
}
