// Package chunker partitions frame ranges into contiguous chunks.
//
// Every function here is pure. For a frame count n and chunk size s the
// result has ceil(n/s) spans that are ordered, pairwise disjoint and cover
// the range exactly once; only the last span may be shorter than s.
package chunker

import (
	"fmt"

	"framefarm/internal/models"
	"framefarm/internal/pkg/errors"
)

// Span is an inclusive pair of bounds. ChunkRange returns zero-based
// offsets, ChunkFrameRange absolute frame numbers.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len is the number of frames covered by the span.
func (s Span) Len() int {
	return s.End - s.Start + 1
}

// ChunkRange splits [0, frameCount-1] into spans of at most chunkSize.
func ChunkRange(frameCount, chunkSize int) ([]Span, error) {
	if chunkSize <= 0 {
		return nil, errors.ValidationField("chunk_size", fmt.Sprintf("chunk size must be positive, got %d", chunkSize)).
			WithOp("chunker.range")
	}
	if frameCount < 1 {
		return nil, errors.ValidationField("frame_count", fmt.Sprintf("frame count must be positive, got %d", frameCount)).
			WithOp("chunker.range")
	}

	n := ceilDiv(frameCount, chunkSize)
	spans := make([]Span, 0, n)
	for i := 0; i < n; i++ {
		start := i * chunkSize
		spans = append(spans, Span{
			Start: start,
			End:   start + min(chunkSize, frameCount-start) - 1,
		})
	}
	return spans, nil
}

// ChunkFrameRange splits the inclusive range [start, end] into spans of at
// most chunkSize frames, keeping absolute frame numbers.
func ChunkFrameRange(start, end, chunkSize int) ([]Span, error) {
	offsets, err := ChunkRange(end-start+1, chunkSize)
	if err != nil {
		return nil, err
	}
	for i := range offsets {
		offsets[i].Start += start
		offsets[i].End += start
	}
	return offsets, nil
}

// ResolvedChunkSize aims for ConcurrencyTarget equally sized chunks but
// never leaves [MinChunkSize, MaxChunkSize]. The bounds win over the target.
func ResolvedChunkSize(spec *models.JobSpec) int {
	size := ceilDiv(spec.FrameCount(), spec.ConcurrencyTarget())
	return clamp(size, spec.MinChunkSize(), spec.MaxChunkSize())
}

// JobChunks partitions the spec's frame range into chunks that point back to
// the spec.
func JobChunks(spec *models.JobSpec) ([]models.Chunk, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	frames := spec.Frames()
	spans, err := ChunkFrameRange(frames.Start, frames.End, ResolvedChunkSize(spec))
	if err != nil {
		return nil, err
	}

	chunks := make([]models.Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = models.Chunk{Job: spec, Start: s.Start, End: s.End}
	}
	return chunks, nil
}

// ceilDiv needs a >= 1 and b >= 1. It cannot overflow, even for b near
// math.MaxInt.
func ceilDiv(a, b int) int {
	return (a-1)/b + 1
}

func clamp(v, lo, hi int) int {
	return min(hi, max(lo, v))
}
