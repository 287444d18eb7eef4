package coordinator

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framefarm/internal/adapters/storage/localfs"
	contracts "framefarm/internal/contracts/renderer/v1"
	"framefarm/internal/dispatch"
	"framefarm/internal/models"
	"framefarm/internal/pkg/errors"
	"framefarm/internal/pkg/logger"
	"framefarm/internal/report"
	"framefarm/internal/session"
)

type fakeRuns struct {
	mu        sync.Mutex
	created   []*models.Run
	finished  []*report.JobReport
	createErr error
	finishErr error
}

func (f *fakeRuns) CreateRun(ctx context.Context, run *models.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, run)
	return nil
}

func (f *fakeRuns) FinishRun(ctx context.Context, rep *report.JobReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, rep)
	return f.finishErr
}

func (f *fakeRuns) GetRun(ctx context.Context, sessionID string) (*models.Run, error) {
	return nil, errors.NotFound("run", sessionID)
}

func (f *fakeRuns) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	return nil, nil
}

func project(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "intro.blend")
	require.NoError(t, os.WriteFile(p, []byte("BLENDER"), 0o644))
	return p
}

func spec(t *testing.T, projectFile string) *models.JobSpec {
	t.Helper()
	s, err := models.NewJobSpec(models.JobSpecParams{
		Name:              "intro",
		Engine:            models.EngineCycles,
		Camera:            "Camera",
		ProjectFile:       projectFile,
		Frames:            models.FrameRange{Start: 1, End: 24},
		Width:             640,
		Height:            360,
		Samples:           16,
		AdaptiveThreshold: 0.01,
		ConcurrencyTarget: 3,
		MinChunkSize:      1,
		MaxChunkSize:      10,
	})
	require.NoError(t, err)
	return s
}

type harness struct {
	store   *localfs.LocalFS
	runs    *fakeRuns
	calls   atomic.Int32
	session session.Session
	fail    map[int]bool
}

func newHarness(t *testing.T) (*harness, *Coordinator) {
	t.Helper()
	h := &harness{store: localfs.New(t.TempDir()), runs: &fakeRuns{}, fail: map[int]bool{}}
	c := New(Deps{
		Store: h.store,
		Runs:  h.runs,
		Invokers: func(s session.Session) dispatch.Invoker {
			h.session = s
			return dispatch.InvokerFunc(func(ctx context.Context, c models.Chunk) (string, error) {
				h.calls.Add(1)
				if h.fail[c.Start] {
					return "", errors.New(errors.CodeUnavailable, "node lost")
				}
				return contracts.SuccessSentinel, nil
			})
		},
		Transport: "http",
		Log:       logger.Discard(),
	})
	return h, c
}

func TestPlanJob(t *testing.T) {
	plan, err := PlanJob(spec(t, "intro.blend"))
	require.NoError(t, err)

	assert.Equal(t, 24, plan.Frames)
	assert.Equal(t, 8, plan.ChunkSize)
	assert.Len(t, plan.Chunks, 3)

	_, err = PlanJob(nil)
	assert.True(t, errors.IsValidation(err))
}

func TestRun_Success(t *testing.T) {
	h, c := newHarness(t)
	ctx := context.Background()

	res, err := c.Run(ctx, spec(t, project(t)))
	require.NoError(t, err)

	assert.Equal(t, int32(3), h.calls.Load())
	assert.Equal(t, h.session, res.Session)
	assert.True(t, res.Report.Succeeded())
	assert.Equal(t, "intro", res.Report.Job)
	assert.False(t, res.Report.FinishedAt.Before(res.Report.StartedAt))

	objs, err := h.store.ListObjects(ctx, res.Session.ID+"/")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, res.Session.ProjectKey(), objs[0].Key)

	require.Len(t, h.runs.created, 1)
	assert.Equal(t, res.Session.ID, h.runs.created[0].SessionID)
	assert.Equal(t, 3, h.runs.created[0].ChunkCount)
	require.Len(t, h.runs.finished, 1)
	assert.Same(t, res.Report, h.runs.finished[0])
}

func TestRun_ChunkFailure(t *testing.T) {
	h, c := newHarness(t)
	h.fail[9] = true

	res, err := c.Run(context.Background(), spec(t, project(t)))

	require.Error(t, err)
	var jf *report.JobFailedError
	require.True(t, stderrors.As(err, &jf))
	assert.Equal(t, []report.FrameSpan{{Start: 9, End: 16}}, jf.FailedRanges())
	assert.Equal(t, res.Session.ID, jf.SessionID)

	require.NotNil(t, res)
	assert.Len(t, res.Report.Entries, 3)
	assert.Equal(t, int32(3), h.calls.Load(), "siblings still run")
	require.Len(t, h.runs.finished, 1)
}

func TestRun_InvalidProjectStopsBeforeDispatch(t *testing.T) {
	h, c := newHarness(t)

	_, err := c.Run(context.Background(), spec(t, filepath.Join(t.TempDir(), "missing.blend")))

	assert.True(t, errors.IsValidation(err))
	assert.Zero(t, h.calls.Load())
	assert.Empty(t, h.runs.created)
}

func TestRun_LedgerCreateFailureStopsBeforeDispatch(t *testing.T) {
	h, c := newHarness(t)
	h.runs.createErr = errors.Unavailable("postgres")

	_, err := c.Run(context.Background(), spec(t, project(t)))

	assert.True(t, errors.IsCode(err, errors.CodeUnavailable))
	assert.Zero(t, h.calls.Load())
}

func TestRun_LedgerFinishFailureIsNotFatal(t *testing.T) {
	h, c := newHarness(t)
	h.runs.finishErr = errors.Unavailable("postgres")

	_, err := c.Run(context.Background(), spec(t, project(t)))
	assert.NoError(t, err)
}

func TestRun_WithoutLedger(t *testing.T) {
	h, _ := newHarness(t)
	c := New(Deps{
		Store: h.store,
		Invokers: func(s session.Session) dispatch.Invoker {
			return dispatch.InvokerFunc(func(ctx context.Context, c models.Chunk) (string, error) {
				return contracts.SuccessSentinel, nil
			})
		},
		Log: logger.Discard(),
	})

	res, err := c.Run(context.Background(), spec(t, project(t)))
	require.NoError(t, err)
	assert.True(t, res.Report.Succeeded())
}
