package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// promoteBatch bounds the tasks moved per PromoteDue call.
const promoteBatch = 100

// promoteScript moves due members of the delayed set onto the ready list in
// one step, so two promoters never deliver the same task twice.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, member in ipairs(due) do
	redis.call('ZREM', KEYS[1], member)
	redis.call('LPUSH', KEYS[2], member)
end
return #due
`)

// RedisQueue keeps ready tasks in a list and moves each popped task atomically
// into a processing list until it is acknowledged. Retries wait in a sorted
// set scored by their due time in unix milliseconds.
type RedisQueue struct {
	client     redis.Cmdable
	readyKey   string
	processKey string
	delayedKey string
}

func NewRedisQueue(client redis.Cmdable, key string) *RedisQueue {
	return &RedisQueue{
		client:     client,
		readyKey:   key,
		processKey: key + ":processing",
		delayedKey: key + ":delayed",
	}
}

func (q *RedisQueue) Push(ctx context.Context, task Task) error {
	b, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := q.client.LPush(ctx, q.readyKey, b).Err(); err != nil {
		return fmt.Errorf("push task %s: %w", task.ID, err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Task, error) {
	raw, err := q.client.BLMove(ctx, q.readyKey, q.processKey, "RIGHT", "LEFT", timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop task: %w", err)
	}

	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		// drop poison messages so they do not block the queue
		q.client.LRem(ctx, q.processKey, 1, raw)
		return nil, fmt.Errorf("decode task: %w", err)
	}
	task.raw = raw
	return &task, nil
}

func (q *RedisQueue) Ack(ctx context.Context, task Task) error {
	if task.raw == "" {
		return fmt.Errorf("ack task %s: not popped from this queue", task.ID)
	}
	if err := q.client.LRem(ctx, q.processKey, 1, task.raw).Err(); err != nil {
		return fmt.Errorf("ack task %s: %w", task.ID, err)
	}
	return nil
}

func (q *RedisQueue) Schedule(ctx context.Context, task Task, at time.Time) error {
	b, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	member := redis.Z{Score: float64(at.UnixMilli()), Member: string(b)}
	if err := q.client.ZAdd(ctx, q.delayedKey, member).Err(); err != nil {
		return fmt.Errorf("schedule task %s: %w", task.ID, err)
	}
	return nil
}

func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		n, err := promoteScript.Run(ctx, q.client, []string{q.delayedKey, q.readyKey}, now.UnixMilli(), promoteBatch).Int()
		if err != nil {
			return total, fmt.Errorf("promote due tasks: %w", err)
		}
		total += n
		if n < promoteBatch {
			return total, nil
		}
	}
}

func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processKey, q.readyKey, "RIGHT", "RIGHT").Err()
		if err == redis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("recover tasks: %w", err)
		}
		moved++
	}
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.readyKey).Result()
}
