package dispatch

import (
	"context"
	"time"

	"framefarm/internal/models"
	"framefarm/internal/pkg/errors"
	"framefarm/internal/session"
	"framefarm/internal/worker/queue"
	"framefarm/internal/worker/renderer"
)

// RendererInvoker calls the HTTP renderer directly, one request per chunk.
type RendererInvoker struct {
	Client  renderer.Client
	Session session.Session
}

func (r RendererInvoker) Invoke(ctx context.Context, c models.Chunk) (string, error) {
	return r.Client.RenderChunk(ctx, r.Session.ChunkSpec(c))
}

// TaskQueue is the part of queue.RedisQueue the coordinator side needs.
type TaskQueue interface {
	ReplyKey(sessionID, chunkID string) string
	PushTask(ctx context.Context, t queue.ChunkTask) error
	WaitResult(ctx context.Context, replyKey string) (queue.ChunkReply, error)
}

// QueueInvoker hands each chunk to the render node pool through Redis and
// blocks for that chunk's reply.
type QueueInvoker struct {
	Queue   TaskQueue
	Session session.Session
}

func (q QueueInvoker) Invoke(ctx context.Context, c models.Chunk) (string, error) {
	id := c.ID()
	now := time.Now().UTC()
	task := queue.ChunkTask{
		SessionID:  q.Session.ID,
		ChunkID:    id,
		ReplyKey:   q.Queue.ReplyKey(q.Session.ID, id),
		Spec:       q.Session.ChunkSpec(c),
		EnqueuedAt: now,
	}
	if dl, ok := ctx.Deadline(); ok {
		task.TimeoutSec = queue.TimeoutSeconds(dl.Sub(now))
	}

	if err := q.Queue.PushTask(ctx, task); err != nil {
		return "", err
	}

	reply, err := q.Queue.WaitResult(ctx, task.ReplyKey)
	if err != nil {
		return "", err
	}
	if reply.Error != "" {
		code := errors.CodeChunkExecution
		if reply.Code != "" {
			code = errors.Code(reply.Code)
		}
		return reply.Message, errors.New(code, reply.Error).WithOp("render_node")
	}
	return reply.Message, nil
}
