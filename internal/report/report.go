// Package report turns per-chunk worker results into a job level outcome.
package report

import (
	"fmt"
	"strings"
	"time"

	contracts "framefarm/internal/contracts/renderer/v1"
	"framefarm/internal/models"
	"framefarm/internal/pkg/errors"
)

// FrameSpan is an inclusive pair of frame bounds.
type FrameSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s FrameSpan) String() string {
	return fmt.Sprintf("%d-%d", s.Start, s.End)
}

// ChunkOutcome is the report entry of one chunk.
type ChunkOutcome struct {
	ChunkID string `json:"chunk_id"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// JobReport lists every chunk of a run in dispatch order.
type JobReport struct {
	SessionID  string         `json:"session_id"`
	Job        string         `json:"job"`
	Entries    []ChunkOutcome `json:"entries"`
	StartedAt  time.Time      `json:"started_at,omitempty"`
	FinishedAt time.Time      `json:"finished_at,omitempty"`
}

// Summary counts chunk outcomes.
type Summary struct {
	Chunks       int `json:"chunks"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	Frames       int `json:"frames"`
	FailedFrames int `json:"failed_frames"`
}

func (r *JobReport) Summary() Summary {
	var s Summary
	for _, e := range r.Entries {
		n := e.End - e.Start + 1
		s.Chunks++
		s.Frames += n
		if e.OK {
			s.Succeeded++
		} else {
			s.Failed++
			s.FailedFrames += n
		}
	}
	return s
}

// Failed returns the bounds of every failed chunk in report order.
func (r *JobReport) Failed() []FrameSpan {
	var out []FrameSpan
	for _, e := range r.Entries {
		if !e.OK {
			out = append(out, FrameSpan{Start: e.Start, End: e.End})
		}
	}
	return out
}

// Succeeded reports whether every chunk rendered.
func (r *JobReport) Succeeded() bool {
	for _, e := range r.Entries {
		if !e.OK {
			return false
		}
	}
	return true
}

// JobFailedError is returned when at least one chunk did not render. It
// carries the full report so callers can print or persist it.
type JobFailedError struct {
	SessionID string
	Failed    []FrameSpan
	Report    *JobReport
}

func (e *JobFailedError) Error() string {
	spans := make([]string, len(e.Failed))
	for i, s := range e.Failed {
		spans[i] = s.String()
	}
	return fmt.Sprintf("job failed: session %s: %d chunk(s) failed: frames %s",
		e.SessionID, len(e.Failed), strings.Join(spans, ", "))
}

// FailedRanges returns the failed bounds for a manual re-run.
func (e *JobFailedError) FailedRanges() []FrameSpan {
	return e.Failed
}

// ErrorCode places JobFailedError under errors.CodeJobFailed.
func (e *JobFailedError) ErrorCode() errors.Code {
	return errors.CodeJobFailed
}

// Is lets errors.Is match JobFailedError against ErrJobFailed.
func (e *JobFailedError) Is(target error) bool {
	if t, ok := target.(*errors.Error); ok {
		return t.Code == errors.CodeJobFailed
	}
	return false
}

// ErrJobFailed matches any *JobFailedError with errors.Is.
var ErrJobFailed = errors.New(errors.CodeJobFailed, "job failed")

// Aggregate checks each result against the renderer's success status. It
// always returns the full report; the error is a *JobFailedError when any
// chunk failed. An empty result set is an internal error, never a success.
func Aggregate(sessionID string, results []models.WorkerResult) (*JobReport, error) {
	rep := &JobReport{SessionID: sessionID, Entries: make([]ChunkOutcome, 0, len(results))}
	if len(results) == 0 {
		return rep, errors.Internal("no chunk results to aggregate").WithOp("report.aggregate")
	}

	for _, r := range results {
		if rep.Job == "" && r.Chunk.Job != nil {
			rep.Job = r.Chunk.Job.Name()
		}

		o := ChunkOutcome{
			ChunkID: r.Chunk.ID(),
			Start:   r.Chunk.Start,
			End:     r.Chunk.End,
			Message: r.Message,
		}
		switch {
		case r.Err != nil:
			o.Error = r.Err.Error()
			o.Code = string(errors.GetCode(r.Err))
		case r.Message != contracts.SuccessSentinel:
			o.Error = fmt.Sprintf("unexpected worker result %q", r.Message)
			o.Code = string(errors.CodeChunkExecution)
		default:
			o.OK = true
		}
		rep.Entries = append(rep.Entries, o)
	}

	if failed := rep.Failed(); len(failed) > 0 {
		return rep, &JobFailedError{SessionID: sessionID, Failed: failed, Report: rep}
	}
	return rep, nil
}
