// Package dispatch fans domain events out to independently retried consumers
// through a durable task queue.
package dispatch

import (
	"encoding/json"
	"fmt"
	"time"
)

// Consumer task types.
const (
	TaskSendSubmissionNotification = "send_submission_notification"
	TaskForwardToReviewQueue       = "forward_to_review_queue"
	TaskRecordAuditEvent           = "record_audit_event"
	TaskScanDocument               = "scan_document"
)

// Task is one unit of work for one consumer. Payload is the event snapshot
// taken when the task was enqueued, so every attempt sees the same data.
// Attempt counts the attempts already made; a retried task carries the
// earliest time it may run again in NotBefore.
type Task struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	ActorID    *string         `json:"actorId,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	Attempt    int             `json:"attempt,omitempty"`
	NotBefore  *time.Time      `json:"notBefore,omitempty"`

	// raw is the encoded form as read from the queue, needed to acknowledge it.
	raw string
}

// Decode unmarshals the payload into out.
func (t Task) Decode(out interface{}) error {
	if err := json.Unmarshal(t.Payload, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", t.Type, err)
	}
	return nil
}

func newTask(id, taskType, entityType, entityID string, actorID *string, payload interface{}, now time.Time) (Task, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("encode %s payload: %w", taskType, err)
	}
	return Task{
		ID:         id,
		Type:       taskType,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    b,
		EnqueuedAt: now,
	}, nil
}
