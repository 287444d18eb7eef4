package worker

import (
	"context"
	"time"

	"framefarm/internal/pkg/logger"
	"framefarm/internal/worker/queue"
)

// TaskSource is the render node side of queue.RedisQueue.
type TaskSource interface {
	PopTask(ctx context.Context) (queue.ChunkTask, error)
	PushResult(ctx context.Context, replyKey string, r queue.ChunkReply) error
}

// ChunkProcessor renders one task; processor.Processor implements it.
type ChunkProcessor interface {
	ProcessChunk(ctx context.Context, t queue.ChunkTask) (string, error)
}

type Deps struct {
	Queue     TaskSource
	Processor ChunkProcessor
	Log       *logger.Logger
	// PopTimeout bounds a single wait for a task; zero means 30s.
	PopTimeout time.Duration
	// RetryDelay is the pause after a failed pop; zero means 1s.
	RetryDelay time.Duration
}
