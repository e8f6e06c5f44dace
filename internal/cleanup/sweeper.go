package cleanup

import (
	"context"
	"time"

	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/common/metrics"

	"github.com/robfig/cron/v3"
)

// BlobDeleter is the delete side of storage.DocumentStore.
type BlobDeleter interface {
	Delete(ctx context.Context, locator string) (bool, error)
}

type Sweeper struct {
	ledger    Ledger
	store     BlobDeleter
	batchSize int
	logger    logger.Logger
}

func NewSweeper(ledger Ledger, store BlobDeleter, batchSize int, log logger.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		ledger:    ledger,
		store:     store,
		batchSize: batchSize,
		logger:    log.WithFields(map[string]interface{}{"component": "orphan-sweeper"}),
	}
}

// Sweep retries one batch of orphaned blobs and reports how many were removed.
// A blob that is already absent counts as removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	orphans, err := s.ledger.Pending(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, o := range orphans {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.store.Delete(ctx, o.Locator); err != nil {
			metrics.OrphanedBlobs.WithLabelValues("retry_failed").Inc()
			s.logger.Warn("orphan delete failed", map[string]interface{}{
				"locator":  o.Locator,
				"attempts": o.Attempts + 1,
				"error":    err.Error(),
			})
			if err := s.ledger.MarkFailed(ctx, o.Locator, err); err != nil {
				s.logger.Error("failed to update orphan ledger", map[string]interface{}{"locator": o.Locator, "error": err.Error()})
			}
			continue
		}
		if err := s.ledger.Resolve(ctx, o.Locator); err != nil {
			s.logger.Error("failed to resolve orphan", map[string]interface{}{"locator": o.Locator, "error": err.Error()})
			continue
		}
		metrics.OrphanedBlobs.WithLabelValues("removed").Inc()
		removed++
	}

	if len(orphans) > 0 {
		s.logger.Info("orphan sweep finished", map[string]interface{}{
			"scanned": len(orphans),
			"removed": removed,
		})
	}
	return removed, nil
}

// Schedule registers the sweep on a cron scheduler that skips a run while the
// previous one is still going. The caller starts and stops the returned cron.
func (s *Sweeper) Schedule(spec string, timeout time.Duration) (*cron.Cron, error) {
	cl := cronLogger{log: s.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("orphan sweep failed", map[string]interface{}{"error": err.Error()})
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, kv(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kv(keysAndValues)
	fields["error"] = err.Error()
	l.log.Error(msg, fields)
}

func kv(pairs []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		if k, ok := pairs[i].(string); ok {
			fields[k] = pairs[i+1]
		}
	}
	return fields
}
