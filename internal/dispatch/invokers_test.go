package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contracts "framefarm/internal/contracts/renderer/v1"
	"framefarm/internal/pkg/errors"
	"framefarm/internal/session"
	"framefarm/internal/worker/queue"
)

type fakeRenderer struct {
	got    []contracts.ChunkSpec
	status string
	err    error
}

func (f *fakeRenderer) RenderChunk(ctx context.Context, spec contracts.ChunkSpec) (string, error) {
	f.got = append(f.got, spec)
	return f.status, f.err
}

func TestRendererInvoker(t *testing.T) {
	c := chunksOf(t, 2)[1]
	r := &fakeRenderer{status: contracts.SuccessSentinel}

	msg, err := RendererInvoker{Client: r, Session: session.Session{ID: "s1"}}.Invoke(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, contracts.SuccessSentinel, msg)
	require.Len(t, r.got, 1)
	assert.Equal(t, 11, r.got[0].FrameStart)
	assert.Equal(t, 20, r.got[0].FrameEnd)
	assert.Equal(t, "s1/project.blend", r.got[0].ProjectObjectKey)
}

type fakeQueue struct {
	mu     sync.Mutex
	pushed []queue.ChunkTask
	reply  queue.ChunkReply
	err    error
}

func (f *fakeQueue) ReplyKey(sessionID, chunkID string) string {
	return "q:results:" + sessionID + ":" + chunkID
}

func (f *fakeQueue) PushTask(ctx context.Context, t queue.ChunkTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, t)
	return nil
}

func (f *fakeQueue) WaitResult(ctx context.Context, replyKey string) (queue.ChunkReply, error) {
	return f.reply, f.err
}

func TestQueueInvoker_Success(t *testing.T) {
	c := chunksOf(t, 1)[0]
	q := &fakeQueue{reply: queue.ChunkReply{ChunkID: c.ID(), Message: contracts.SuccessSentinel}}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultChunkTimeout)
	defer cancel()

	msg, err := QueueInvoker{Queue: q, Session: session.Session{ID: "s1"}}.Invoke(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, contracts.SuccessSentinel, msg)

	require.Len(t, q.pushed, 1)
	task := q.pushed[0]
	assert.Equal(t, "q:results:s1:intro-1-10", task.ReplyKey)
	assert.Equal(t, "intro-1-10", task.ChunkID)
	assert.Equal(t, "s1", task.Spec.SessionID)
	assert.Greater(t, task.TimeoutSec, int64(0))
}

func TestQueueInvoker_SubSecondDeadlineStillBounded(t *testing.T) {
	c := chunksOf(t, 1)[0]
	q := &fakeQueue{reply: queue.ChunkReply{ChunkID: c.ID(), Message: contracts.SuccessSentinel}}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := QueueInvoker{Queue: q, Session: session.Session{ID: "s1"}}.Invoke(ctx, c)
	require.NoError(t, err)
	require.Len(t, q.pushed, 1)
	assert.Equal(t, int64(1), q.pushed[0].TimeoutSec)
	assert.False(t, q.pushed[0].EnqueuedAt.IsZero())
}

func TestQueueInvoker_NoDeadlineNoTimeout(t *testing.T) {
	c := chunksOf(t, 1)[0]
	q := &fakeQueue{reply: queue.ChunkReply{ChunkID: c.ID(), Message: contracts.SuccessSentinel}}

	_, err := QueueInvoker{Queue: q, Session: session.Session{ID: "s1"}}.Invoke(context.Background(), c)
	require.NoError(t, err)
	assert.Zero(t, q.pushed[0].TimeoutSec)
}

func TestQueueInvoker_ErrorReply(t *testing.T) {
	c := chunksOf(t, 1)[0]
	q := &fakeQueue{reply: queue.ChunkReply{ChunkID: c.ID(), Error: "frames missing", Code: string(errors.CodeTimeout)}}

	_, err := QueueInvoker{Queue: q, Session: session.Session{ID: "s1"}}.Invoke(context.Background(), c)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeTimeout))
	assert.Contains(t, err.Error(), "frames missing")
}

func TestQueueInvoker_ThroughDispatcher(t *testing.T) {
	chunks := chunksOf(t, 2)
	q := &fakeQueue{err: errors.Unavailable("redis")}

	results := newDispatcher(QueueInvoker{Queue: q, Session: session.Session{ID: "s1"}}, Options{}).
		Dispatch(context.Background(), chunks)

	for _, r := range results {
		assert.True(t, errors.IsChunkExecution(r.Err))
	}
}
