// Package cleanup tracks document blobs whose deletion failed and retries
// removing them on a schedule.
package cleanup

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"permohonan-service/internal/common/errors"
)

// Orphan is a blob that no document row references any more.
type Orphan struct {
	Locator       string
	Reason        string
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	LastAttemptAt *time.Time
}

type Ledger interface {
	RecordOrphan(ctx context.Context, locator, reason string, cause error) error
	// Pending returns up to limit orphans, least attempted first.
	Pending(ctx context.Context, limit int) ([]Orphan, error)
	Resolve(ctx context.Context, locator string) error
	MarkFailed(ctx context.Context, locator string, cause error) error
}

type PostgresLedger struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db, now: time.Now}
}

func (l *PostgresLedger) RecordOrphan(ctx context.Context, locator, reason string, cause error) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO orphaned_blobs (locator, reason, attempts, last_error, created_at)
		VALUES ($1, $2, 1, $3, $4)
		ON CONFLICT (locator) DO UPDATE SET
			attempts = orphaned_blobs.attempts + 1,
			last_error = EXCLUDED.last_error`,
		locator, reason, errText(cause), l.now().UTC(),
	)
	if err != nil {
		return errors.NewDatabaseError("record orphaned blob", err)
	}
	return nil
}

func (l *PostgresLedger) Pending(ctx context.Context, limit int) ([]Orphan, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT locator, reason, attempts, last_error, created_at, last_attempt_at
		FROM orphaned_blobs
		ORDER BY attempts, created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.NewDatabaseError("list orphaned blobs", err)
	}
	defer rows.Close()

	var out []Orphan
	for rows.Next() {
		var (
			o           Orphan
			lastErr     sql.NullString
			lastAttempt sql.NullTime
		)
		if err := rows.Scan(&o.Locator, &o.Reason, &o.Attempts, &lastErr, &o.CreatedAt, &lastAttempt); err != nil {
			return nil, errors.NewDatabaseError("scan orphaned blob", err)
		}
		o.LastError = lastErr.String
		if lastAttempt.Valid {
			t := lastAttempt.Time
			o.LastAttemptAt = &t
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("iterate orphaned blobs", err)
	}
	return out, nil
}

func (l *PostgresLedger) Resolve(ctx context.Context, locator string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM orphaned_blobs WHERE locator = $1`, locator); err != nil {
		return errors.NewDatabaseError("resolve orphaned blob", err)
	}
	return nil
}

func (l *PostgresLedger) MarkFailed(ctx context.Context, locator string, cause error) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE orphaned_blobs
		SET attempts = attempts + 1, last_error = $2, last_attempt_at = $3
		WHERE locator = $1`,
		locator, errText(cause), l.now().UTC(),
	)
	if err != nil {
		return errors.NewDatabaseError("mark orphaned blob", err)
	}
	return nil
}

// MemoryLedger keeps orphans in process. Used with the in-memory repository.
type MemoryLedger struct {
	mu      sync.Mutex
	orphans map[string]Orphan
	now     func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{orphans: make(map[string]Orphan), now: time.Now}
}

func (l *MemoryLedger) RecordOrphan(_ context.Context, locator, reason string, cause error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orphans[locator]
	if !ok {
		o = Orphan{Locator: locator, Reason: reason, CreatedAt: l.now().UTC()}
	}
	o.Attempts++
	o.LastError = errText(cause)
	l.orphans[locator] = o
	return nil
}

func (l *MemoryLedger) Pending(_ context.Context, limit int) ([]Orphan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Orphan, 0, len(l.orphans))
	for _, o := range l.orphans {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Attempts != out[j].Attempts {
			return out[i].Attempts < out[j].Attempts
		}
		return out[i].Locator < out[j].Locator
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemoryLedger) Resolve(_ context.Context, locator string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.orphans, locator)
	return nil
}

func (l *MemoryLedger) MarkFailed(_ context.Context, locator string, cause error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orphans[locator]
	if !ok {
		return nil
	}
	now := l.now().UTC()
	o.Attempts++
	o.LastError = errText(cause)
	o.LastAttemptAt = &now
	l.orphans[locator] = o
	return nil
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
