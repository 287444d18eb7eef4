// Command worker is a render node: it pops chunk tasks from Redis, renders
// them through the local renderer and replies with the outcome.
package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"framefarm/internal/pkg/logger"
	"framefarm/internal/pkg/shutdown"
	"framefarm/internal/pkg/util"
	"framefarm/internal/storage"
	"framefarm/internal/worker"
	"framefarm/internal/worker/processor"
	"framefarm/internal/worker/queue"
	"framefarm/internal/worker/renderer"
)

func main() {
	log := logger.New(logger.Config{
		Level:       util.Env("LOG_LEVEL", "info"),
		Format:      util.Env("LOG_FORMAT", "json"),
		ServiceName: "framefarm-worker",
		AddSource:   util.BoolEnv("LOG_SOURCE", false),
	})

	nodeID := util.Env("WORKER_NODE_ID", util.NewID("node"))
	log = log.WithFields(map[string]any{"node_id": nodeID})

	redisAddr, err := util.RequireEnv("REDIS_ADDR")
	if err != nil {
		log.LogFatal("worker startup failed", err)
	}
	rendererBaseURL, err := util.RequireEnv("RENDERER_HTTP_BASEURL")
	if err != nil {
		log.LogFatal("worker startup failed", err)
	}
	queueName := util.Env("CHUNK_QUEUE_NAME", queue.DefaultQueueName)

	shutdownMgr := shutdown.NewManager(log, util.DurationEnv("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second))

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	shutdownMgr.Register("redis", func(ctx context.Context) error {
		return rdb.Close()
	})

	q := queue.NewRedisQueue(rdb, queueName)
	if err := q.Ping(context.Background()); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}

	sp, err := storage.NewProvider()
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}

	p := processor.New(processor.Deps{
		Renderer:      renderer.NewHTTPClient(rendererBaseURL),
		SP:            sp,
		CleanupFailed: util.BoolEnv("WORKER_CLEANUP_FAILED", false),
		Log:           log,
	})

	// Shutdown cancels ctx first; the loop finishes its reply before Redis
	// is closed.
	ctx := shutdownMgr.Context()
	stopped := make(chan struct{})
	shutdownMgr.Register("worker-loop", func(ctx context.Context) error {
		select {
		case <-stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	// An exited loop also triggers shutdown.
	loopCtx, loopDone := context.WithCancel(context.Background())
	go func() {
		defer loopDone()
		defer close(stopped)
		log.Info("render node started",
			"queue", queueName,
			"renderer", rendererBaseURL,
			"storage", sp.Provider(),
		)
		if err := worker.Run(ctx, worker.Deps{Queue: q, Processor: p, Log: log}); err != nil && ctx.Err() == nil {
			log.LogError(ctx, "worker stopped", err)
		}
	}()

	shutdownMgr.WaitWithContext(loopCtx)
}
