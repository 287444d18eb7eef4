package models

import "fmt"

// Chunk is a contiguous sub-range of a job's frames assigned to one worker
// invocation. Chunks only reference their job; they never copy it.
type Chunk struct {
	Job   *JobSpec
	Start int
	End   int
}

// Frames returns the chunk bounds as a FrameRange.
func (c Chunk) Frames() FrameRange {
	return FrameRange{Start: c.Start, End: c.End}
}

// FrameCount is the number of frames the chunk renders.
func (c Chunk) FrameCount() int {
	return c.End - c.Start + 1
}

// ID is the sequence id of the chunk: "<job>-<start>-<end>".
func (c Chunk) ID() string {
	name := ""
	if c.Job != nil {
		name = c.Job.Name()
	}
	return SequenceID(name, c.Start, c.End)
}

func (c Chunk) String() string {
	return fmt.Sprintf("Chunk(%s)", c.ID())
}

// SequenceID builds the "<label>-<start>-<end>" identifier shared by job and
// multi-range chunks.
func SequenceID(label string, start, end int) string {
	return fmt.Sprintf("%s-%d-%d", label, start, end)
}

// WorkerResult is the terminal outcome of one chunk invocation. A nil Err
// means the invocation returned Message; it still has to match the success
// sentinel to count as rendered.
type WorkerResult struct {
	Chunk   Chunk
	Message string
	Err     error
}

// Failed reports whether the invocation itself failed.
func (r WorkerResult) Failed() bool {
	return r.Err != nil
}
