package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"framefarm/internal/coordinator"
	"framefarm/internal/dispatch"
	"framefarm/internal/pkg/errors"
	"framefarm/internal/pkg/util"
	"framefarm/internal/ports"
	"framefarm/internal/repositories"
	"framefarm/internal/session"
	"framefarm/internal/storage"
	"framefarm/internal/worker/queue"
	"framefarm/internal/worker/renderer"
)

const (
	transportHTTP  = "http"
	transportRedis = "redis"
)

// submitEnv is everything a submission talks to outside the process.
type submitEnv struct {
	store    ports.StorageProvider
	invokers coordinator.InvokerFactory
	// runs is nil when DATABASE_URL is unset.
	runs    repositories.RunStore
	closers []func()
}

func (e *submitEnv) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// openStore builds the storage provider from the environment. Tests replace it.
var openStore = func() (ports.StorageProvider, error) {
	return storage.NewProvider()
}

// openSubmitEnv wires storage, the chunk transport and the optional run
// ledger from the environment. Tests replace it.
var openSubmitEnv = func(ctx context.Context, transport string) (*submitEnv, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	env := &submitEnv{store: store}

	switch transport {
	case transportHTTP:
		base, err := util.RequireEnv("RENDERER_HTTP_BASEURL")
		if err != nil {
			return nil, err
		}
		client := renderer.NewHTTPClient(base)
		env.invokers = func(s session.Session) dispatch.Invoker {
			return dispatch.RendererInvoker{Client: client, Session: s}
		}

	case transportRedis:
		addr, err := util.RequireEnv("REDIS_ADDR")
		if err != nil {
			return nil, err
		}
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		env.closers = append(env.closers, func() { _ = rdb.Close() })
		q := queue.NewRedisQueue(rdb, util.Env("CHUNK_QUEUE_NAME", queue.DefaultQueueName))
		if err := q.Ping(ctx); err != nil {
			env.close()
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "submit.redis", "ping redis")
		}
		env.invokers = func(s session.Session) dispatch.Invoker {
			return dispatch.QueueInvoker{Queue: q, Session: s}
		}

	default:
		return nil, errors.Configf("unknown transport %q: must be %s or %s", transport, transportHTTP, transportRedis).
			WithField("key", "transport")
	}

	if dsn := util.Env("DATABASE_URL", ""); dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			env.close()
			return nil, errors.WrapWithCode(err, errors.CodeConfig, "submit.ledger", "parse DATABASE_URL")
		}
		env.closers = append(env.closers, pool.Close)
		repo := repositories.NewRunRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			env.close()
			return nil, err
		}
		env.runs = repo
	}
	return env, nil
}
