package report

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contracts "framefarm/internal/contracts/renderer/v1"
	"framefarm/internal/models"
	"framefarm/internal/pkg/errors"
)

func results(t *testing.T, msgs ...string) []models.WorkerResult {
	t.Helper()
	job, err := models.NewJobSpec(models.JobSpecParams{
		Name:              "intro",
		Engine:            models.EngineCycles,
		Camera:            "Camera",
		ProjectFile:       "intro.blend",
		Frames:            models.FrameRange{Start: 1, End: 10 * len(msgs)},
		Width:             640,
		Height:            360,
		Samples:           16,
		ConcurrencyTarget: 4,
		MinChunkSize:      1,
		MaxChunkSize:      10,
	})
	require.NoError(t, err)

	out := make([]models.WorkerResult, len(msgs))
	for i, m := range msgs {
		out[i] = models.WorkerResult{
			Chunk:   models.Chunk{Job: job, Start: i*10 + 1, End: i*10 + 10},
			Message: m,
		}
	}
	return out
}

func TestAggregate_AllSucceeded(t *testing.T) {
	ok := contracts.SuccessSentinel
	rep, err := Aggregate("s1", results(t, ok, ok, ok))

	require.NoError(t, err)
	assert.True(t, rep.Succeeded())
	assert.Equal(t, "intro", rep.Job)
	assert.Equal(t, Summary{Chunks: 3, Succeeded: 3, Frames: 30}, rep.Summary())
	assert.Empty(t, rep.Failed())
}

func TestAggregate_OneFailure(t *testing.T) {
	ok := contracts.SuccessSentinel
	in := results(t, ok, ok, ok)
	in[1].Err = errors.ChunkExecution(errors.Unavailable("renderer"), in[1].Chunk.ID(), "chunk invocation failed")

	rep, err := Aggregate("s1", in)

	require.Error(t, err)
	require.NotNil(t, rep)
	assert.Len(t, rep.Entries, 3)

	var jf *JobFailedError
	require.True(t, stderrors.As(err, &jf))
	assert.Equal(t, []FrameSpan{{Start: 11, End: 20}}, jf.FailedRanges())
	assert.Same(t, rep, jf.Report)
	assert.Contains(t, err.Error(), "11-20")
	assert.NotContains(t, err.Error(), "1-10,")

	assert.True(t, errors.IsJobFailed(err))
	assert.True(t, errors.Is(err, ErrJobFailed))
	assert.Equal(t, 502, errors.GetHTTPStatus(errors.Wrap(err, "coordinator.run", "render failed")))

	assert.Equal(t, string(errors.CodeChunkExecution), rep.Entries[1].Code)
	assert.Equal(t, Summary{Chunks: 3, Succeeded: 2, Failed: 1, Frames: 30, FailedFrames: 10}, rep.Summary())
}

func TestAggregate_UnexpectedMessageIsFailure(t *testing.T) {
	ok := contracts.SuccessSentinel
	rep, err := Aggregate("s1", results(t, ok, "Render complete", "", ok))

	var jf *JobFailedError
	require.True(t, stderrors.As(err, &jf))
	assert.Equal(t, []FrameSpan{{11, 20}, {21, 30}}, jf.Failed)
	assert.Contains(t, rep.Entries[1].Error, "unexpected worker result")
	assert.Equal(t, "Render complete", rep.Entries[1].Message)
}

func TestAggregate_ErrorWinsOverMessage(t *testing.T) {
	in := results(t, contracts.SuccessSentinel)
	in[0].Err = errors.Timeout("chunk")

	rep, err := Aggregate("s1", in)
	require.Error(t, err)
	assert.False(t, rep.Entries[0].OK)
	assert.Equal(t, string(errors.CodeTimeout), rep.Entries[0].Code)
}

func TestAggregate_EmptyIsNotSuccess(t *testing.T) {
	rep, err := Aggregate("s1", nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInternal, errors.GetCode(err))
	assert.False(t, errors.IsJobFailed(err))
	require.NotNil(t, rep)
	assert.Equal(t, Summary{}, rep.Summary())
}
