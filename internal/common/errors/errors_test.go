package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFileSizeExceededError(t *testing.T) {
	err := NewFileSizeExceededError(15*1024*1024, 10*1024*1024)

	assert.Equal(t, ErrCodeFileSizeExceeded, err.Code)
	assert.Contains(t, err.Message, "15MB")
	assert.Contains(t, err.Message, "10MB")
	assert.Equal(t, int64(15*1024*1024), err.Metadata["actual"])
	assert.Equal(t, int64(10*1024*1024), err.Metadata["max"])
	assert.False(t, err.Retryable)
}

func TestNewIncompleteError(t *testing.T) {
	err := NewIncompleteError([]string{"Pelan Lantai", "Salinan SSM"})

	assert.Equal(t, []string{"Pelan Lantai", "Salinan SSM"}, err.Metadata["missing"])
	assert.Equal(t, "Pelan Lantai, Salinan SSM", err.Details)
}

func TestCodeOfAndIs(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", NewNotDraftError("p-1", "submitted"))

	assert.Equal(t, ErrCodeNotDraft, CodeOf(wrapped))
	assert.True(t, Is(wrapped, ErrCodeNotDraft))
	assert.False(t, Is(wrapped, ErrCodeNotOwner))
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("boom")))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unclassified", stderrors.New("connection reset"), true},
		{"gateway 503", NewGatewayError("notification", 503, stderrors.New("x")), true},
		{"gateway network", NewGatewayError("notification", 0, stderrors.New("x")), true},
		{"gateway 408", NewGatewayError("notification", 408, stderrors.New("x")), true},
		{"gateway 400", NewGatewayError("notification", 400, stderrors.New("x")), false},
		{"not found", NewNotFoundError("permohonan", "p-1"), false},
		{"database", NewDatabaseError("insert", stderrors.New("x")), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := NewStorageError("put", cause)
	assert.ErrorIs(t, err, cause)
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "10MB", HumanBytes(10*1024*1024))
	assert.Equal(t, "1.5MB", HumanBytes(1536*1024))
	assert.Equal(t, "512KB", HumanBytes(512*1024))
	assert.Equal(t, "12B", HumanBytes(12))
}
