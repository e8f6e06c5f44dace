package retry

import (
	stderrors "errors"
	"testing"
	"time"

	"permohonan-service/internal/common/errors"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Next_ExhaustsWithBackoffSchedule(t *testing.T) {
	p := DefaultPolicy()
	cause := stderrors.New("dial tcp: connection refused")

	var waits []time.Duration
	attempt := 1
	for {
		wait, again := p.Next(attempt, cause)
		if !again {
			break
		}
		waits = append(waits, wait)
		attempt++
	}

	assert.Equal(t, 3, attempt)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second}, waits)
}

func TestPolicy_Next_RetriesTransientGatewayError(t *testing.T) {
	wait, again := DefaultPolicy().Next(1, errors.NewGatewayError("notification", 503, stderrors.New("unavailable")))
	assert.True(t, again)
	assert.Equal(t, time.Second, wait)
}

func TestPolicy_Next_StopsOnPermanentError(t *testing.T) {
	_, again := DefaultPolicy().Next(1, errors.NewGatewayError("review", 422, stderrors.New("rejected")))
	assert.False(t, again)
}

func TestPolicy_Next_SingleAttempt(t *testing.T) {
	_, again := Policy{}.Next(1, stderrors.New("timeout"))
	assert.False(t, again)
	assert.Equal(t, 1, Policy{MaxAttempts: -2}.Attempts())
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{Backoff: []time.Duration{time.Second, 5 * time.Second}}
	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 5*time.Second, p.Delay(2))
	assert.Equal(t, 5*time.Second, p.Delay(7))
}
