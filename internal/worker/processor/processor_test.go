package processor

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framefarm/internal/adapters/storage/localfs"
	contracts "framefarm/internal/contracts/renderer/v1"
	"framefarm/internal/pkg/errors"
	"framefarm/internal/pkg/logger"
	"framefarm/internal/ports"
	"framefarm/internal/session"
	"framefarm/internal/worker/queue"
)

// fakeRenderer writes the frames of a spec into the store, skipping any in
// skip, then answers with status or err.
type fakeRenderer struct {
	sp     ports.StorageProvider
	skip   map[int]bool
	status string
	err    error
	calls  int
	ctxDL  bool
}

func (f *fakeRenderer) RenderChunk(ctx context.Context, spec contracts.ChunkSpec) (string, error) {
	f.calls++
	_, f.ctxDL = ctx.Deadline()
	s := session.Session{ID: spec.SessionID}
	for n := spec.FrameStart; n <= spec.FrameEnd; n++ {
		if f.skip[n] {
			continue
		}
		if _, err := f.sp.PutObject(ctx, ports.PutObjectInput{
			ObjectKey: s.FrameKey(spec.Job, n),
			Reader:    strings.NewReader("EXR"),
		}); err != nil {
			return "", err
		}
	}
	return f.status, f.err
}

func newTask(s session.Session, start, end int) queue.ChunkTask {
	id := fmt.Sprintf("intro-%d-%d", start, end)
	return queue.ChunkTask{
		SessionID: s.ID,
		ChunkID:   id,
		Spec: contracts.ChunkSpec{
			Job:              "intro",
			SessionID:        s.ID,
			ChunkID:          id,
			Engine:           "CYCLES",
			ProjectObjectKey: s.ProjectKey(),
			FrameStart:       start,
			FrameEnd:         end,
			OutputPattern:    s.OutputPattern("intro"),
		},
	}
}

type fixture struct {
	store    *localfs.LocalFS
	renderer *fakeRenderer
	session  session.Session
}

func setup(t *testing.T, cleanup bool) (*fixture, *Processor) {
	t.Helper()
	f := &fixture{store: localfs.New(t.TempDir()), session: session.New()}
	f.renderer = &fakeRenderer{sp: f.store, skip: map[int]bool{}, status: contracts.SuccessSentinel}

	_, err := f.store.PutObject(context.Background(), ports.PutObjectInput{
		ObjectKey: f.session.ProjectKey(),
		Reader:    strings.NewReader("BLENDER"),
	})
	require.NoError(t, err)

	p := New(Deps{Renderer: f.renderer, SP: f.store, CleanupFailed: cleanup, Log: logger.Discard()})
	return f, p
}

func (f *fixture) frames(t *testing.T) []string {
	t.Helper()
	objs, err := f.store.ListObjects(context.Background(), f.session.FramesPrefix())
	require.NoError(t, err)
	keys := make([]string, len(objs))
	for i, o := range objs {
		keys[i] = o.Key
	}
	return keys
}

func TestProcessChunk_Success(t *testing.T) {
	f, p := setup(t, true)

	msg, err := p.ProcessChunk(context.Background(), newTask(f.session, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, contracts.SuccessSentinel, msg)
	assert.Equal(t, []string{
		f.session.ID + "/frames/intro_0001.exr",
		f.session.ID + "/frames/intro_0002.exr",
		f.session.ID + "/frames/intro_0003.exr",
	}, f.frames(t))
	assert.False(t, f.renderer.ctxDL, "no timeout granted")
}

func TestProcessChunk_AppliesTaskTimeout(t *testing.T) {
	f, p := setup(t, false)
	task := newTask(f.session, 1, 1)
	task.TimeoutSec = 60

	_, err := p.ProcessChunk(context.Background(), task)
	require.NoError(t, err)
	assert.True(t, f.renderer.ctxDL)
}

func TestProcessChunk_MissingFrames(t *testing.T) {
	f, p := setup(t, false)
	f.renderer.skip[2] = true

	_, err := p.ProcessChunk(context.Background(), newTask(f.session, 1, 3))
	require.Error(t, err)
	assert.True(t, errors.IsChunkExecution(err))
	assert.Contains(t, err.Error(), "intro_0002.exr")
	assert.Len(t, f.frames(t), 2, "cleanup disabled keeps partial output")
}

func TestProcessChunk_CleanupRemovesPartialFrames(t *testing.T) {
	f, p := setup(t, true)
	f.renderer.skip[3] = true

	_, err := p.ProcessChunk(context.Background(), newTask(f.session, 1, 3))
	require.Error(t, err)
	assert.Empty(t, f.frames(t))
}

func TestProcessChunk_RendererError(t *testing.T) {
	f, p := setup(t, true)
	f.renderer.err = errors.New(errors.CodeUnavailable, "renderer down")
	f.renderer.skip = map[int]bool{1: true, 2: true}

	_, err := p.ProcessChunk(context.Background(), newTask(f.session, 1, 2))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnavailable))
}

func TestProcessChunk_UnexpectedStatusPassesThrough(t *testing.T) {
	f, p := setup(t, true)
	f.renderer.status = "CRASHED"

	msg, err := p.ProcessChunk(context.Background(), newTask(f.session, 4, 5))
	require.NoError(t, err)
	assert.Equal(t, "CRASHED", msg)
	assert.Empty(t, f.frames(t))
}

func TestProcessChunk_MissingProject(t *testing.T) {
	f, p := setup(t, false)
	other := session.New()

	_, err := p.ProcessChunk(context.Background(), newTask(other, 1, 2))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Zero(t, f.renderer.calls)
}

func TestProcessChunk_InvalidTask(t *testing.T) {
	f, p := setup(t, false)

	task := newTask(f.session, 1, 2)
	task.Spec.ChunkID = "other"
	_, err := p.ProcessChunk(context.Background(), task)
	assert.True(t, errors.IsValidation(err))
	assert.Zero(t, f.renderer.calls)
}

func TestValidateTask(t *testing.T) {
	s := session.New()
	tests := []struct {
		name   string
		mutate func(*queue.ChunkTask)
		field  string
	}{
		{"bad session", func(t *queue.ChunkTask) { t.SessionID = "nope" }, ""},
		{"no chunk id", func(t *queue.ChunkTask) { t.ChunkID, t.Spec.ChunkID = " ", " " }, "chunk_id"},
		{"session mismatch", func(t *queue.ChunkTask) { t.Spec.SessionID = session.New().ID }, "spec.session_id"},
		{"no job", func(t *queue.ChunkTask) { t.Spec.Job = "" }, "spec.job"},
		{"reversed frames", func(t *queue.ChunkTask) { t.Spec.FrameStart = 9 }, "spec.frames"},
		{"no project", func(t *queue.ChunkTask) { t.Spec.ProjectObjectKey = "" }, "spec.project_object_key"},
		{"negative timeout", func(t *queue.ChunkTask) { t.TimeoutSec = -1 }, "timeout_sec"},
	}

	require.NoError(t, ValidateTask(newTask(s, 1, 2)))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := newTask(s, 1, 2)
			tt.mutate(&task)
			err := ValidateTask(task)
			require.True(t, errors.IsValidation(err), "got %v", err)
			if tt.field != "" {
				assert.Equal(t, tt.field, errors.GetFields(err)["field"])
			}
		})
	}
}

func TestInputHandler_CachesKnownProjects(t *testing.T) {
	f, _ := setup(t, false)
	ih := NewInputHandler(f.store)
	spec := newTask(f.session, 1, 1).Spec
	ctx := context.Background()

	require.NoError(t, ih.EnsureProject(ctx, spec))
	require.NoError(t, f.store.DeleteObject(ctx, spec.ProjectObjectKey))
	assert.NoError(t, ih.EnsureProject(ctx, spec))

	assert.True(t, errors.IsNotFound(NewInputHandler(f.store).EnsureProject(ctx, spec)))
}

func TestRendererAdapter_Deadline(t *testing.T) {
	var got time.Time
	ra := NewRendererAdapter(rendererFunc(func(ctx context.Context, spec contracts.ChunkSpec) (string, error) {
		got, _ = ctx.Deadline()
		return contracts.SuccessSentinel, nil
	}))
	task := queue.ChunkTask{TimeoutSec: 30}

	_, err := ra.Render(context.Background(), task)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), got, 5*time.Second)
}

func TestRendererAdapter_ChargesQueueWait(t *testing.T) {
	var got time.Time
	ra := NewRendererAdapter(rendererFunc(func(ctx context.Context, spec contracts.ChunkSpec) (string, error) {
		got, _ = ctx.Deadline()
		return contracts.SuccessSentinel, nil
	}))
	enqueued := time.Now().Add(-20 * time.Second)
	task := queue.ChunkTask{TimeoutSec: 30, EnqueuedAt: enqueued}

	_, err := ra.Render(context.Background(), task)
	require.NoError(t, err)
	assert.WithinDuration(t, enqueued.Add(30*time.Second), got, time.Second)
}

func TestRendererAdapter_ExpiredInQueue(t *testing.T) {
	called := false
	ra := NewRendererAdapter(rendererFunc(func(ctx context.Context, spec contracts.ChunkSpec) (string, error) {
		called = true
		return contracts.SuccessSentinel, nil
	}))
	task := queue.ChunkTask{ChunkID: "intro-1-10", TimeoutSec: 5, EnqueuedAt: time.Now().Add(-time.Minute)}

	_, err := ra.Render(context.Background(), task)
	require.Error(t, err)
	assert.Equal(t, errors.CodeTimeout, errors.GetCode(err))
	assert.False(t, called, "renderer must not run once the budget is spent")
}

type rendererFunc func(ctx context.Context, spec contracts.ChunkSpec) (string, error)

func (f rendererFunc) RenderChunk(ctx context.Context, spec contracts.ChunkSpec) (string, error) {
	return f(ctx, spec)
}
