package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framefarm/internal/pkg/errors"
	"framefarm/internal/pkg/logger"
	"framefarm/internal/worker/queue"
)

type fakeSource struct {
	tasks   chan queue.ChunkTask
	popErrs chan error

	mu      sync.Mutex
	replies map[string]queue.ChunkReply
	got     chan struct{}
}

func newFakeSource(tasks ...queue.ChunkTask) *fakeSource {
	f := &fakeSource{
		tasks:   make(chan queue.ChunkTask, len(tasks)),
		popErrs: make(chan error, 4),
		replies: make(map[string]queue.ChunkReply),
		got:     make(chan struct{}, 16),
	}
	for _, t := range tasks {
		f.tasks <- t
	}
	return f
}

func (f *fakeSource) PopTask(ctx context.Context) (queue.ChunkTask, error) {
	select {
	case err := <-f.popErrs:
		return queue.ChunkTask{}, err
	default:
	}
	select {
	case t := <-f.tasks:
		return t, nil
	case <-ctx.Done():
		return queue.ChunkTask{}, errors.WrapWithCode(ctx.Err(), errors.CodeTimeout, "queue.pop", "wait timed out")
	}
}

func (f *fakeSource) PushResult(ctx context.Context, key string, r queue.ChunkReply) error {
	f.mu.Lock()
	f.replies[key] = r
	f.mu.Unlock()
	f.got <- struct{}{}
	return nil
}

func (f *fakeSource) reply(key string) queue.ChunkReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replies[key]
}

type processorFunc func(ctx context.Context, t queue.ChunkTask) (string, error)

func (p processorFunc) ProcessChunk(ctx context.Context, t queue.ChunkTask) (string, error) {
	return p(ctx, t)
}

func task(id string) queue.ChunkTask {
	return queue.ChunkTask{SessionID: "s1", ChunkID: id, ReplyKey: "reply:" + id, EnqueuedAt: time.Now()}
}

func waitReplies(t *testing.T, f *fakeSource, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.got:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for reply %d", i+1)
		}
	}
}

func startRun(t *testing.T, d Deps) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, d) }()
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
			return nil
		}
	}
}

func TestRun_RepliesToEveryTask(t *testing.T) {
	src := newFakeSource(task("a"), task("b"), task("c"))
	proc := processorFunc(func(ctx context.Context, tk queue.ChunkTask) (string, error) {
		if tk.ChunkID == "b" {
			return "", errors.New(errors.CodeTimeout, "render took too long")
		}
		return "RENDERED", nil
	})

	stop := startRun(t, Deps{Queue: src, Processor: proc, Log: logger.Discard(), PopTimeout: 20 * time.Millisecond})
	waitReplies(t, src, 3)
	assert.ErrorIs(t, stop(), context.Canceled)

	assert.Equal(t, queue.ChunkReply{ChunkID: "a", Message: "RENDERED"}, src.reply("reply:a"))
	b := src.reply("reply:b")
	assert.Equal(t, "b", b.ChunkID)
	assert.Equal(t, string(errors.CodeTimeout), b.Code)
	assert.Contains(t, b.Error, "render took too long")
	assert.Equal(t, "RENDERED", src.reply("reply:c").Message)
}

func TestRun_RetriesAfterPopError(t *testing.T) {
	src := newFakeSource(task("a"))
	src.popErrs <- errors.Unavailable("redis")
	proc := processorFunc(func(ctx context.Context, tk queue.ChunkTask) (string, error) {
		return "RENDERED", nil
	})

	stop := startRun(t, Deps{Queue: src, Processor: proc, Log: logger.Discard(), RetryDelay: time.Millisecond})
	waitReplies(t, src, 1)
	_ = stop()
	assert.Equal(t, "RENDERED", src.reply("reply:a").Message)
}

func TestRun_DropsTaskWithoutReplyKey(t *testing.T) {
	bad := task("x")
	bad.ReplyKey = ""
	src := newFakeSource(bad, task("a"))

	var mu sync.Mutex
	var seen []string
	proc := processorFunc(func(ctx context.Context, tk queue.ChunkTask) (string, error) {
		mu.Lock()
		seen = append(seen, tk.ChunkID)
		mu.Unlock()
		return "RENDERED", nil
	})

	stop := startRun(t, Deps{Queue: src, Processor: proc, Log: logger.Discard()})
	waitReplies(t, src, 1)
	_ = stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a"}, seen)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, Deps{Queue: newFakeSource(), Processor: processorFunc(nil), Log: logger.Discard()})
	require.ErrorIs(t, err, context.Canceled)
}
