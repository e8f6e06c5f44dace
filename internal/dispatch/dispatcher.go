package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"permohonan-service/internal/audit"
	"permohonan-service/internal/common/errors"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/common/metrics"
	"permohonan-service/internal/common/observability"
	"permohonan-service/internal/common/retry"
	"permohonan-service/internal/models"

	"github.com/google/uuid"
)

// Handler performs one attempt of a task. Returning a retryable error (see
// errors.IsRetryable) schedules another attempt after the policy's backoff.
type Handler interface {
	Handle(ctx context.Context, task Task) error
}

type HandlerFunc func(ctx context.Context, task Task) error

func (f HandlerFunc) Handle(ctx context.Context, task Task) error { return f(ctx, task) }

// Dispatcher enqueues one task per registered consumer for every event and
// runs a worker pool that executes them under the retry policy. A worker runs
// one attempt and moves on; a retry goes back to the queue with a due time.
type Dispatcher struct {
	queue           Queue
	audit           audit.Sink
	policy          retry.Policy
	pollTimeout     time.Duration
	promoteInterval time.Duration
	logger          logger.Logger
	obs             *observability.Observability

	mu       sync.RWMutex
	handlers map[string]Handler

	now   func() time.Time
	newID func() string
}

type Option func(*Dispatcher)

func WithObservability(obs *observability.Observability) Option {
	return func(d *Dispatcher) { d.obs = obs }
}

func WithPollTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.pollTimeout = timeout
		}
	}
}

// WithPromoteInterval sets how often due retries are moved to the ready queue.
func WithPromoteInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.promoteInterval = interval
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func New(queue Queue, sink audit.Sink, policy retry.Policy, log logger.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:           queue,
		audit:           sink,
		policy:          policy,
		pollTimeout:     5 * time.Second,
		promoteInterval: 250 * time.Millisecond,
		logger:          log.WithFields(map[string]interface{}{"component": "side-effect-dispatcher"}),
		handlers:        make(map[string]Handler),
		now:             time.Now,
		newID:           func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register binds a consumer to a task type. Events only produce tasks for
// registered consumers.
func (d *Dispatcher) Register(taskType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[taskType] = h
	d.logger.Info("registered side-effect consumer", map[string]interface{}{"taskType": taskType})
}

// CheckQueue reads the queue depth into the depth gauge. It doubles as the
// readiness probe for the queue backend.
func (d *Dispatcher) CheckQueue(ctx context.Context) error {
	n, err := d.queue.Len(ctx)
	if err != nil {
		return err
	}
	metrics.DispatchQueueDepth.Set(float64(n))
	return nil
}

func (d *Dispatcher) handler(taskType string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[taskType]
	return h, ok
}

// DispatchSubmission enqueues the audit, notification and review tasks for a
// committed submission.
func (d *Dispatcher) DispatchSubmission(ctx context.Context, ev models.SubmissionEvent) error {
	actor := ev.UserID
	entry := models.AuditEntry{
		Key:        ev.EventID + ":" + models.ActionPermohonanSubmitted,
		Action:     models.ActionPermohonanSubmitted,
		EntityType: models.EntityPermohonan,
		EntityID:   ev.ApplicationID,
		ActorID:    &actor,
		Metadata: map[string]interface{}{
			"licenseTypeId": ev.LicenseTypeID,
			"companyId":     ev.CompanyID,
			"submittedAt":   ev.SubmittedAt.Format(time.RFC3339),
		},
		OccurredAt: ev.OccurredAt,
	}

	return d.enqueueAll(ctx, models.EntityPermohonan, ev.ApplicationID, &actor, []pending{
		{TaskRecordAuditEvent, entry},
		{TaskSendSubmissionNotification, ev},
		{TaskForwardToReviewQueue, ev},
	})
}

// DispatchUpload enqueues the audit and antivirus tasks for a stored document.
func (d *Dispatcher) DispatchUpload(ctx context.Context, ev models.UploadEvent) error {
	actor := ev.UploaderID
	metadata := map[string]interface{}{
		"permohonanId":  ev.ApplicationID,
		"requirementId": ev.RequirementID,
		"filename":      ev.OriginalFilename,
		"mimeType":      ev.MimeType,
		"sizeBytes":     ev.SizeBytes,
	}
	if ev.PreviousDocumentID != "" {
		metadata["replacedDocumentId"] = ev.PreviousDocumentID
	}
	entry := models.AuditEntry{
		Key:        ev.EventID + ":" + models.ActionDocumentUploaded,
		Action:     models.ActionDocumentUploaded,
		EntityType: models.EntityDocument,
		EntityID:   ev.DocumentID,
		ActorID:    &actor,
		Metadata:   metadata,
		OccurredAt: ev.OccurredAt,
	}

	return d.enqueueAll(ctx, models.EntityDocument, ev.DocumentID, &actor, []pending{
		{TaskRecordAuditEvent, entry},
		{TaskScanDocument, ev},
	})
}

// DispatchAudit enqueues a single audit entry.
func (d *Dispatcher) DispatchAudit(ctx context.Context, entry models.AuditEntry) error {
	if entry.Key == "" {
		entry.Key = d.newID() + ":" + entry.Action
	}
	return d.enqueueAll(ctx, entry.EntityType, entry.EntityID, entry.ActorID, []pending{
		{TaskRecordAuditEvent, entry},
	})
}

type pending struct {
	taskType string
	payload  interface{}
}

func (d *Dispatcher) enqueueAll(ctx context.Context, entityType, entityID string, actorID *string, items []pending) error {
	var errs []error
	for _, p := range items {
		if _, ok := d.handler(p.taskType); !ok {
			continue
		}
		task, err := newTask(d.newID(), p.taskType, entityType, entityID, actorID, p.payload, d.now().UTC())
		if err == nil {
			err = d.queue.Push(ctx, task)
		}
		if err != nil {
			d.logger.Error("failed to enqueue side effect", map[string]interface{}{
				"taskType": p.taskType,
				"entityId": entityID,
				"error":    err.Error(),
			})
			errs = append(errs, err)
			continue
		}
		d.logger.Debug("side effect enqueued", map[string]interface{}{
			"taskType": p.taskType,
			"taskId":   task.ID,
			"entityId": entityID,
		})
	}
	return stderrors.Join(errs...)
}

// Run recovers tasks left in flight by a previous process and then consumes
// the queue with concurrency workers until ctx is cancelled. A separate loop
// promotes retries as they fall due.
func (d *Dispatcher) Run(ctx context.Context, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	recovered, err := d.queue.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover in-flight tasks: %w", err)
	}
	if recovered > 0 {
		d.logger.Warn("requeued tasks left in flight", map[string]interface{}{"count": recovered})
	}

	d.logger.Info("side-effect dispatcher started", map[string]interface{}{"concurrency": concurrency})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.promote(ctx)
	}()
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.consume(ctx, worker)
		}(i)
	}
	wg.Wait()

	d.logger.Info("side-effect dispatcher stopped", nil)
	return nil
}

func (d *Dispatcher) promote(ctx context.Context) {
	ticker := time.NewTicker(d.promoteInterval)
	defer ticker.Stop()
	for {
		n, err := d.queue.PromoteDue(ctx, d.now())
		if err != nil && ctx.Err() == nil {
			d.logger.Error("promoting due retries failed", map[string]interface{}{"error": err.Error()})
		}
		if n > 0 {
			d.logger.Debug("due retries promoted", map[string]interface{}{"count": n})
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) consume(ctx context.Context, worker int) {
	for ctx.Err() == nil {
		task, err := d.queue.Pop(ctx, d.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("queue pop failed", map[string]interface{}{"worker": worker, "error": err.Error()})
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if task == nil {
			continue
		}

		if !d.Process(ctx, *task) {
			// interrupted by shutdown; the task stays pending for Recover
			return
		}
		if err := d.queue.Ack(ctx, *task); err != nil {
			d.logger.Error("task ack failed", map[string]interface{}{"taskId": task.ID, "error": err.Error()})
		}
	}
}

// Process makes one attempt at task. A retryable failure with attempts left
// is scheduled again after the policy's backoff; the final failure records
// <taskType>_failed through the audit sink. It reports false only when ctx
// was cancelled before the attempt reached an outcome, in which case the
// task must stay pending.
func (d *Dispatcher) Process(ctx context.Context, task Task) bool {
	attempt := task.Attempt + 1
	log := d.logger.WithFields(map[string]interface{}{
		"taskType": task.Type,
		"taskId":   task.ID,
		"entityId": task.EntityID,
		"attempt":  attempt,
	})

	h, ok := d.handler(task.Type)
	if !ok {
		log.Error("no consumer registered for task, dropping", nil)
		return true
	}

	metrics.DispatchTasksActive.WithLabelValues(task.Type).Inc()
	defer metrics.DispatchTasksActive.WithLabelValues(task.Type).Dec()
	start := d.now()

	err := h.Handle(ctx, task)
	elapsed := d.now().Sub(start)
	metrics.DispatchTaskDuration.WithLabelValues(task.Type).Observe(elapsed.Seconds())

	if err == nil {
		metrics.DispatchTasksCompleted.WithLabelValues(task.Type).Inc()
		d.obs.RecordTaskDuration(ctx, task.Type, elapsed, "completed")
		log.Debug("side effect delivered", nil)
		return true
	}
	if ctx.Err() != nil {
		log.Warn("side effect interrupted by shutdown", nil)
		return false
	}

	if wait, again := d.policy.Next(attempt, err); again {
		next := task
		next.Attempt = attempt
		due := d.now().Add(wait).UTC()
		next.NotBefore = &due
		schedErr := d.queue.Schedule(ctx, next, due)
		if schedErr == nil {
			metrics.DispatchTaskRetries.WithLabelValues(task.Type).Inc()
			log.Warn("side effect attempt failed, retrying", map[string]interface{}{
				"backoff": wait.String(),
				"error":   err.Error(),
			})
			return true
		}
		log.Error("scheduling retry failed", map[string]interface{}{"error": schedErr.Error()})
		err = fmt.Errorf("%w (retry not scheduled: %v)", err, schedErr)
	}

	code := errors.CodeOf(err)
	metrics.DispatchTasksFailed.WithLabelValues(task.Type, string(code)).Inc()
	d.obs.RecordTaskDuration(ctx, task.Type, elapsed, "failed")
	log.Error("side effect failed permanently", map[string]interface{}{
		"errorCode": string(code),
		"error":     err.Error(),
	})

	d.recordFailure(ctx, task, attempt, err)
	return true
}

func (d *Dispatcher) recordFailure(ctx context.Context, task Task, attempt int, cause error) {
	entry := models.AuditEntry{
		Key:        task.ID + ":failed",
		Action:     models.FailedAction(task.Type),
		EntityType: task.EntityType,
		EntityID:   task.EntityID,
		ActorID:    task.ActorID,
		Metadata: map[string]interface{}{
			"taskId":    task.ID,
			"attempt":   attempt,
			"error":     cause.Error(),
			"errorCode": string(errors.CodeOf(cause)),
		},
		OccurredAt: d.now().UTC(),
	}
	if err := d.audit.Record(ctx, entry); err != nil {
		d.logger.Error("failed to record side-effect failure", map[string]interface{}{
			"taskType": task.Type,
			"taskId":   task.ID,
			"error":    err.Error(),
		})
	}
}
