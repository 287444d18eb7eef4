package worker

import (
	"context"
	"time"

	"framefarm/internal/pkg/errors"
	"framefarm/internal/pkg/logger"
	"framefarm/internal/worker/queue"
)

// Run pops chunk tasks until ctx is done, processing one at a time. Every
// popped task gets exactly one reply, even when processing fails.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	popTimeout := d.PopTimeout
	if popTimeout <= 0 {
		popTimeout = 30 * time.Second
	}
	retryDelay := d.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled, stopping")
			return ctx.Err()
		default:
		}

		popCtx, cancel := context.WithTimeout(ctx, popTimeout)
		task, err := d.Queue.PopTask(popCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}
			// An empty queue surfaces as the pop deadline.
			if errors.IsCode(err, errors.CodeTimeout) {
				continue
			}

			log.Warn("queue pop error, retrying", "error", err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			continue
		}

		handle(ctx, d, log, task)
	}
}

func handle(ctx context.Context, d Deps, log *logger.Logger, task queue.ChunkTask) {
	taskLog := log.WithSessionID(task.SessionID).WithChunk(task.ChunkID, task.Spec.FrameStart, task.Spec.FrameEnd)
	if task.ReplyKey == "" {
		taskLog.Error("dropping task without reply key")
		return
	}

	taskLog.Info("processing chunk", "queued_ms", time.Since(task.EnqueuedAt).Milliseconds())
	start := time.Now()

	reply := queue.ChunkReply{ChunkID: task.ChunkID}
	msg, err := d.Processor.ProcessChunk(ctx, task)
	reply.Message = msg
	if err != nil {
		reply.Error = err.Error()
		reply.Code = string(errors.GetCode(err))
		taskLog.Error("chunk failed",
			"code", reply.Code,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	} else {
		taskLog.Info("chunk completed",
			"status", msg,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	// The coordinator is waiting on this key even if we are shutting down.
	if err := d.Queue.PushResult(context.WithoutCancel(ctx), task.ReplyKey, reply); err != nil {
		taskLog.LogError(ctx, "failed to push chunk reply", err)
	}
}
