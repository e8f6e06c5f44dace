package cleanup

import (
	"context"
	"fmt"
	"regexp"
	"testing"
	"time"

	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/storage"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockDeleter struct {
	DeleteFunc func(ctx context.Context, locator string) (bool, error)
}

func (m *MockDeleter) Delete(ctx context.Context, locator string) (bool, error) {
	return m.DeleteFunc(ctx, locator)
}

var fixedNow = time.Date(2026, 5, 4, 2, 15, 0, 0, time.UTC)

func TestSweep_RemovesBlobsAndClearsLedger(t *testing.T) {
	ctx := context.Background()
	store := storage.NewLocalStoreWithFs(afero.NewMemMapFs(), "/blobs")
	locator, err := store.Put(ctx, "permohonan/p-1/R1/d-1.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	ledger := NewMemoryLedger()
	require.NoError(t, ledger.RecordOrphan(ctx, locator, "document deleted", fmt.Errorf("timeout")))
	require.NoError(t, ledger.RecordOrphan(ctx, "permohonan/p-1/R2/already-gone.pdf", "replaced", nil))

	removed, err := NewSweeper(ledger, store, 10, logger.NewTestLogger(t)).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	exists, err := store.Exists(ctx, locator)
	require.NoError(t, err)
	assert.False(t, exists)

	pending, err := ledger.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSweep_FailureKeepsEntry(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	ledger.now = func() time.Time { return fixedNow }
	require.NoError(t, ledger.RecordOrphan(ctx, "a", "document deleted", fmt.Errorf("first")))

	deleter := &MockDeleter{DeleteFunc: func(ctx context.Context, locator string) (bool, error) {
		return false, errors.NewStorageError("delete", fmt.Errorf("bucket unreachable"))
	}}
	removed, err := NewSweeper(ledger, deleter, 0, logger.NewTestLogger(t)).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	pending, err := ledger.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.Contains(t, pending[0].LastError, "bucket unreachable")
	require.NotNil(t, pending[0].LastAttemptAt)
	assert.Equal(t, fixedNow, *pending[0].LastAttemptAt)
}

func TestSweep_BatchSize(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	for i := 0; i < 5; i++ {
		require.NoError(t, ledger.RecordOrphan(ctx, fmt.Sprintf("blob-%d", i), "replaced", nil))
	}
	var seen []string
	deleter := &MockDeleter{DeleteFunc: func(ctx context.Context, locator string) (bool, error) {
		seen = append(seen, locator)
		return true, nil
	}}

	removed, err := NewSweeper(ledger, deleter, 2, logger.NewNoOpLogger()).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"blob-0", "blob-1"}, seen)
}

func TestSchedule(t *testing.T) {
	s := NewSweeper(NewMemoryLedger(), &MockDeleter{}, 10, logger.NewNoOpLogger())

	c, err := s.Schedule("*/5 * * * *", time.Minute)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	_, err = s.Schedule("every tuesday", time.Minute)
	assert.Error(t, err)
}

func TestPostgresLedger_RecordOrphan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPostgresLedger(db)
	l.now = func() time.Time { return fixedNow }

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO orphaned_blobs`)).
		WithArgs("permohonan/p-1/R1/d-1.pdf", "document deleted", "timeout", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, l.RecordOrphan(context.Background(), "permohonan/p-1/R1/d-1.pdf", "document deleted", fmt.Errorf("timeout")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_PendingResolveMarkFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPostgresLedger(db)
	l.now = func() time.Time { return fixedNow }

	rows := sqlmock.NewRows([]string{"locator", "reason", "attempts", "last_error", "created_at", "last_attempt_at"}).
		AddRow("a", "replaced", 1, "timeout", fixedNow, nil).
		AddRow("b", "document deleted", 3, nil, fixedNow, fixedNow)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM orphaned_blobs`)).WithArgs(50).WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM orphaned_blobs WHERE locator = $1`)).
		WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE orphaned_blobs`)).
		WithArgs("b", "still failing", fixedNow).WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	pending, err := l.Pending(ctx, 50)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "timeout", pending[0].LastError)
	assert.Nil(t, pending[0].LastAttemptAt)
	assert.NotNil(t, pending[1].LastAttemptAt)

	require.NoError(t, l.Resolve(ctx, "a"))
	require.NoError(t, l.MarkFailed(ctx, "b", fmt.Errorf("still failing")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_DatabaseError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM orphaned_blobs`)).WillReturnError(fmt.Errorf("connection refused"))

	_, err = NewSweeper(NewPostgresLedger(db), &MockDeleter{}, 10, logger.NewNoOpLogger()).Sweep(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCodeDatabaseFailed))
}
