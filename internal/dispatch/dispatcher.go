// Package dispatch fans chunks out to remote workers under a concurrency
// ceiling and gathers one result per chunk in input order.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"framefarm/internal/models"
	"framefarm/internal/pkg/errors"
	"framefarm/internal/pkg/logger"
)

// Platform limits of the remote worker pool.
const (
	DefaultMaxConcurrency = 20
	DefaultChunkTimeout   = 8 * time.Hour
)

// Invoker runs one chunk on a remote worker and returns its message.
type Invoker interface {
	Invoke(ctx context.Context, c models.Chunk) (string, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, c models.Chunk) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, c models.Chunk) (string, error) {
	return f(ctx, c)
}

type Options struct {
	// MaxConcurrency caps in-flight invocations. Defaults to DefaultMaxConcurrency.
	MaxConcurrency int
	// ChunkTimeout bounds each invocation on its own. Defaults to DefaultChunkTimeout.
	ChunkTimeout time.Duration
	Log          *logger.Logger
}

type Dispatcher struct {
	inv     Invoker
	limit   int
	timeout time.Duration
	log     *logger.Logger
}

func New(inv Invoker, opts Options) *Dispatcher {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.ChunkTimeout <= 0 {
		opts.ChunkTimeout = DefaultChunkTimeout
	}
	if opts.Log == nil {
		opts.Log = logger.NewDefault()
	}
	return &Dispatcher{
		inv:     inv,
		limit:   opts.MaxConcurrency,
		timeout: opts.ChunkTimeout,
		log:     opts.Log.WithComponent("dispatcher"),
	}
}

// Dispatch invokes every chunk once and returns results[i] for chunks[i].
//
// A failing chunk never cancels its siblings and is never retried. When ctx
// is cancelled, chunks that have not started yet are recorded as failed
// without being invoked.
func (d *Dispatcher) Dispatch(ctx context.Context, chunks []models.Chunk) []models.WorkerResult {
	results := make([]models.WorkerResult, len(chunks))
	if len(chunks) == 0 {
		return results
	}

	log := d.log.FromContext(ctx)
	log.Info("dispatching chunks", "chunks", len(chunks), "max_concurrency", d.limit, "chunk_timeout", d.timeout.String())

	sem := semaphore.NewWeighted(int64(d.limit))
	var wg sync.WaitGroup

	for i, c := range chunks {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(chunks); j++ {
				results[j] = notStarted(chunks[j], err)
			}
			log.Warn("dispatch interrupted", "not_started", len(chunks)-i, "error", err)
			break
		}
		if err := ctx.Err(); err != nil {
			sem.Release(1)
			for j := i; j < len(chunks); j++ {
				results[j] = notStarted(chunks[j], err)
			}
			log.Warn("dispatch interrupted", "not_started", len(chunks)-i, "error", err)
			break
		}

		wg.Add(1)
		go func(i int, c models.Chunk) {
			defer func() {
				sem.Release(1)
				wg.Done()
			}()
			results[i] = d.run(ctx, c)
		}(i, c)
	}

	wg.Wait()
	return results
}

func (d *Dispatcher) run(ctx context.Context, c models.Chunk) models.WorkerResult {
	id := c.ID()
	log := d.log.FromContext(ctx).WithChunk(id, c.Start, c.End)
	started := time.Now()
	log.Debug("chunk started")

	chunkCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		msg string
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errors.Internalf("panic in invoker: %v", r)}
			}
		}()
		msg, err := d.inv.Invoke(chunkCtx, c)
		done <- outcome{msg: msg, err: err}
	}()

	var res models.WorkerResult
	select {
	case o := <-done:
		res = models.WorkerResult{Chunk: c, Message: o.msg}
		if o.err != nil {
			cause := o.err
			if chunkCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				cause = errors.WrapWithCode(o.err, errors.CodeTimeout, "dispatch.invoke", "chunk timed out")
			}
			res.Err = errors.ChunkExecution(cause, id, "chunk invocation failed")
		}
	case <-chunkCtx.Done():
		// The invoker ignored its context. Its goroutine is abandoned; the
		// buffered channel lets it finish without blocking.
		res = models.WorkerResult{Chunk: c}
		if ctx.Err() != nil {
			res.Err = errors.ChunkExecution(
				errors.WrapWithCode(ctx.Err(), errors.CodeCanceled, "dispatch.invoke", "dispatch canceled"),
				id, "chunk interrupted")
		} else {
			res.Err = errors.ChunkExecution(
				errors.Timeout(fmt.Sprintf("chunk %s after %s", id, d.timeout)),
				id, "chunk timed out")
		}
	}

	elapsed := time.Since(started)
	if res.Err != nil {
		log.Error("chunk failed", "duration", elapsed.String(), "error", res.Err)
	} else {
		log.Info("chunk finished", "duration", elapsed.String(), "message", res.Message)
	}
	return res
}

func notStarted(c models.Chunk, cause error) models.WorkerResult {
	return models.WorkerResult{
		Chunk: c,
		Err: errors.ChunkExecution(
			errors.WrapWithCode(cause, errors.CodeCanceled, "dispatch.acquire", "dispatch canceled"),
			c.ID(), "chunk not started"),
	}
}
