// Command api serves the planning endpoints and the run ledger over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"framefarm/internal/httpapi"
	"framefarm/internal/pkg/errors"
	"framefarm/internal/pkg/logger"
	"framefarm/internal/pkg/shutdown"
	"framefarm/internal/pkg/util"
	"framefarm/internal/repositories"
	"framefarm/internal/storage"
	"framefarm/internal/worker/queue"
)

var version = "dev"

func main() {
	log := logger.New(logger.Config{
		Level:       util.Env("LOG_LEVEL", "info"),
		Format:      util.Env("LOG_FORMAT", "json"),
		ServiceName: "framefarm-api",
		AddSource:   util.BoolEnv("LOG_SOURCE", false),
	})
	log.Info("starting framefarm api", "version", version)

	mgr := shutdown.NewManager(log, util.DurationEnv("API_SHUTDOWN_TIMEOUT", 30*time.Second))
	srv, err := newServer(context.Background(), log, mgr)
	if err != nil {
		log.LogFatal("api startup failed", err)
	}

	mgr.Register("http-server", func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})
	go func() {
		log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("http server failed", err)
		}
	}()

	mgr.Wait()
}

// newServer connects the ledger, the optional queue and the storage
// provider, registering each for cleanup as it comes up.
func newServer(ctx context.Context, log *logger.Logger, mgr *shutdown.Manager) (*http.Server, error) {
	dbURL, err := util.RequireEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfig, "api.ledger", "parse DATABASE_URL")
	}
	mgr.RegisterSimple("postgres", pool.Close)

	runs := repositories.NewRunRepository(pool)
	if err := runs.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	deps := httpapi.Deps{Runs: runs, DB: runs, Log: log, Version: version}

	// Redis only backs the deep health probe here.
	if addr := util.Env("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		mgr.Register("redis", func(context.Context) error { return rdb.Close() })
		deps.Queue = queue.NewRedisQueue(rdb, util.Env("CHUNK_QUEUE_NAME", queue.DefaultQueueName))
	}

	sp, err := storage.NewProvider()
	if err != nil {
		return nil, err
	}
	deps.SP = sp
	log.Info("api dependencies ready", "storage", sp.Provider(), "redis", deps.Queue != nil)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", util.IntEnv("HTTP_PORT", 8080)),
		Handler:      httpapi.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}, nil
}
