package repositories

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framefarm/internal/models"
	"framefarm/internal/pkg/errors"
	"framefarm/internal/report"
	"framefarm/internal/session"
)

var _ RunStore = (*RunRepository)(nil)

func sampleReport(sessionID string) *report.JobReport {
	return &report.JobReport{
		SessionID: sessionID,
		Job:       "intro",
		Entries: []report.ChunkOutcome{
			{ChunkID: "intro-1-10", Start: 1, End: 10, OK: true, Message: "RENDERED"},
			{ChunkID: "intro-11-20", Start: 11, End: 20, Error: "renderer http 500", Code: "CHUNK_EXECUTION_ERROR"},
		},
		FinishedAt: time.Now().UTC(),
	}
}

func TestChunkRows(t *testing.T) {
	rows := chunkRows(sampleReport("s1"))

	require.Len(t, rows, 2)
	assert.Equal(t, models.RunChunk{ChunkID: "intro-1-10", Seq: 0, FrameStart: 1, FrameEnd: 10, OK: true, Message: "RENDERED"}, rows[0])
	assert.Equal(t, 1, rows[1].Seq)
	assert.False(t, rows[1].OK)
	assert.Equal(t, "CHUNK_EXECUTION_ERROR", rows[1].Code)
}

// newTestRepo connects to DATABASE_URL and skips when it is unset.
func newTestRepo(t *testing.T) *RunRepository {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := NewRunRepository(pool)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

func TestRunRepository_Lifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	sid := session.New().ID

	run := &models.Run{
		SessionID:  sid,
		Job:        "intro",
		Engine:     "CYCLES",
		FrameStart: 1,
		FrameEnd:   20,
		ChunkSize:  10,
		ChunkCount: 2,
		Transport:  "http",
	}
	require.NoError(t, repo.CreateRun(ctx, run))
	assert.Equal(t, models.RunRunning, run.Status)
	assert.False(t, run.CreatedAt.IsZero())

	err := repo.CreateRun(ctx, run)
	assert.True(t, errors.IsCode(err, errors.CodeConflict))

	require.NoError(t, repo.FinishRun(ctx, sampleReport(sid)))

	got, err := repo.GetRun(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, got.Status)
	assert.Equal(t, 1, got.FailedChunks)
	require.NotNil(t, got.FinishedAt)
	require.Len(t, got.Chunks, 2)
	assert.Equal(t, "intro-11-20", got.Chunks[1].ChunkID)

	runs, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, runs)
}

func TestRunRepository_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetRun(ctx, session.New().ID)
	assert.True(t, errors.IsNotFound(err))

	err = repo.FinishRun(ctx, sampleReport(session.New().ID))
	assert.True(t, errors.IsNotFound(err))
}
