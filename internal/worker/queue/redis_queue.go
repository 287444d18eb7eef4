package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	contracts "framefarm/internal/contracts/renderer/v1"
	"framefarm/internal/pkg/errors"
)

// DefaultQueueName is the Redis list render nodes pop chunk tasks from.
const DefaultQueueName = "framefarm:chunks"

// replyTTL bounds how long an unread reply survives a vanished coordinator.
const replyTTL = 24 * time.Hour

// pollSlice is the longest single BRPOP; ctx is re-checked between slices.
const pollSlice = 5 * time.Second

// ChunkTask is one chunk handed to a render node.
type ChunkTask struct {
	SessionID  string              `json:"session_id"`
	ChunkID    string              `json:"chunk_id"`
	ReplyKey   string              `json:"reply_key"`
	TimeoutSec int64               `json:"timeout_sec"`
	Spec       contracts.ChunkSpec `json:"spec"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
}

// Timeout is the per-chunk wall clock the coordinator granted, zero if none.
func (t ChunkTask) Timeout() time.Duration {
	return time.Duration(t.TimeoutSec) * time.Second
}

// Deadline is EnqueuedAt plus Timeout, so time spent waiting in the queue
// counts against the chunk. A task without EnqueuedAt starts its clock at
// now. ok is false when no timeout was granted.
func (t ChunkTask) Deadline(now time.Time) (deadline time.Time, ok bool) {
	if t.TimeoutSec <= 0 {
		return time.Time{}, false
	}
	start := t.EnqueuedAt
	if start.IsZero() {
		start = now
	}
	return start.Add(t.Timeout()), true
}

// TimeoutSeconds converts a remaining budget to TimeoutSec, rounding up.
// Any deadline yields at least one second, since zero means no timeout.
func TimeoutSeconds(d time.Duration) int64 {
	if d <= time.Second {
		return 1
	}
	return int64((d + time.Second - 1) / time.Second)
}

// ChunkReply is a render node's answer to a ChunkTask.
type ChunkReply struct {
	ChunkID string `json:"chunk_id"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

type RedisQueue struct {
	rdb       *redis.Client
	queueName string
}

func NewRedisQueue(rdb *redis.Client, queueName string) *RedisQueue {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

func (q *RedisQueue) Name() string { return q.queueName }

// ReplyKey is the per-chunk list a render node pushes its reply to.
func (q *RedisQueue) ReplyKey(sessionID, chunkID string) string {
	return q.queueName + ":results:" + sessionID + ":" + chunkID
}

// PushTask enqueues t. Tasks are consumed FIFO.
func (q *RedisQueue) PushTask(ctx context.Context, t ChunkTask) error {
	b, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "queue.push", "encode task")
	}
	if err := q.rdb.LPush(ctx, q.queueName, b).Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.push", "push task")
	}
	return nil
}

// PopTask blocks (BRPOP) until a task is available or ctx is done.
func (q *RedisQueue) PopTask(ctx context.Context) (ChunkTask, error) {
	raw, err := q.pop(ctx, q.queueName)
	if err != nil {
		return ChunkTask{}, err
	}
	var t ChunkTask
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return ChunkTask{}, errors.Wrap(err, "queue.pop", "decode task").WithField("payload", truncate(raw))
	}
	return t, nil
}

// PushResult stores r on replyKey with a TTL.
func (q *RedisQueue) PushResult(ctx context.Context, replyKey string, r ChunkReply) error {
	b, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "queue.reply", "encode reply")
	}
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, replyKey, b)
		p.Expire(ctx, replyKey, replyTTL)
		return nil
	})
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "queue.reply", "push reply")
	}
	return nil
}

// WaitResult blocks until a reply arrives on replyKey or ctx is done.
func (q *RedisQueue) WaitResult(ctx context.Context, replyKey string) (ChunkReply, error) {
	raw, err := q.pop(ctx, replyKey)
	if err != nil {
		return ChunkReply{}, err
	}
	var r ChunkReply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return ChunkReply{}, errors.Wrap(err, "queue.wait", "decode reply").WithField("payload", truncate(raw))
	}
	return r, nil
}

// Ping checks the Redis connection.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func (q *RedisQueue) pop(ctx context.Context, key string) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", ctxErr(err)
		}

		wait := pollSlice
		if dl, ok := ctx.Deadline(); ok {
			if left := time.Until(dl); left < wait {
				wait = max(left, time.Millisecond)
			}
		}

		res, err := q.rdb.BRPop(ctx, wait, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctxErr(ctx.Err())
			}
			return "", errors.WrapWithCode(err, errors.CodeUnavailable, "queue.pop", "brpop "+key)
		}
		if len(res) < 2 {
			continue
		}
		return res[1], nil
	}
}

func ctxErr(err error) error {
	if err == context.DeadlineExceeded {
		return errors.WrapWithCode(err, errors.CodeTimeout, "queue.pop", "wait timed out")
	}
	return errors.WrapWithCode(err, errors.CodeCanceled, "queue.pop", "wait canceled")
}

func truncate(s string) string {
	if len(s) > 256 {
		return s[:256] + "..."
	}
	return s
}
