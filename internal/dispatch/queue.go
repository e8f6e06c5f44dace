package dispatch

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Queue is a work queue with at-least-once delivery. A popped task stays
// pending until Ack; Recover returns pending tasks of a crashed process to the
// ready state. Scheduled tasks wait in a delayed set until PromoteDue moves
// them to the ready state.
type Queue interface {
	Push(ctx context.Context, task Task) error
	// Pop waits up to timeout for a task and returns nil when none arrived.
	Pop(ctx context.Context, timeout time.Duration) (*Task, error)
	Ack(ctx context.Context, task Task) error
	// Schedule parks task until at.
	Schedule(ctx context.Context, task Task, at time.Time) error
	// PromoteDue makes every task scheduled at or before now ready.
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	Recover(ctx context.Context) (int, error)
	Len(ctx context.Context) (int64, error)
}

type delayedTask struct {
	at   time.Time
	task Task
}

// MemoryQueue is an unbounded in-process queue. Tasks do not survive a restart.
type MemoryQueue struct {
	mu      sync.Mutex
	ready   []Task
	delayed []delayedTask
	// pending is keyed by the encoded task, so a retry of a task that is
	// still being acknowledged does not collide with it.
	pending map[string]Task
	signal  chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		pending: make(map[string]Task),
		signal:  make(chan struct{}, 1),
	}
}

func encode(task Task) (Task, error) {
	b, err := json.Marshal(task)
	if err != nil {
		return task, err
	}
	task.raw = string(b)
	return task, nil
}

func (q *MemoryQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) Push(_ context.Context, task Task) error {
	task, err := encode(task)
	if err != nil {
		return err
	}

	q.mu.Lock()
	q.ready = append(q.ready, task)
	q.mu.Unlock()

	q.wake()
	return nil
}

func (q *MemoryQueue) Pop(ctx context.Context, timeout time.Duration) (*Task, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.ready) > 0 {
			task := q.ready[0]
			q.ready = q.ready[1:]
			q.pending[task.raw] = task
			more := len(q.ready) > 0
			q.mu.Unlock()
			if more {
				q.wake()
			}
			return &task, nil
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *MemoryQueue) Ack(_ context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, task.raw)
	return nil
}

func (q *MemoryQueue) Schedule(_ context.Context, task Task, at time.Time) error {
	task, err := encode(task)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	i := sort.Search(len(q.delayed), func(i int) bool { return q.delayed[i].at.After(at) })
	q.delayed = append(q.delayed, delayedTask{})
	copy(q.delayed[i+1:], q.delayed[i:])
	q.delayed[i] = delayedTask{at: at, task: task}
	return nil
}

func (q *MemoryQueue) PromoteDue(_ context.Context, now time.Time) (int, error) {
	q.mu.Lock()
	n := 0
	for n < len(q.delayed) && !q.delayed[n].at.After(now) {
		q.ready = append(q.ready, q.delayed[n].task)
		n++
	}
	q.delayed = q.delayed[n:]
	q.mu.Unlock()

	if n > 0 {
		q.wake()
	}
	return n, nil
}

func (q *MemoryQueue) Recover(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	for key, task := range q.pending {
		q.ready = append(q.ready, task)
		delete(q.pending, key)
	}
	return n, nil
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ready)), nil
}
