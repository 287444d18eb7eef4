package chunker

import (
	"fmt"
	"math"
	"strings"

	"framefarm/internal/models"
	"framefarm/internal/pkg/errors"
)

// LabeledRange is one independently chunked range of a multi-camera job.
type LabeledRange struct {
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// LabeledChunk is a chunk of a LabeledRange.
type LabeledChunk struct {
	Label      string `json:"label"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	SequenceID string `json:"sequence_id"`
}

// Plan is the result of chunking several ranges with one shared size.
type Plan struct {
	ChunkSize   int            `json:"chunk_size"`
	TotalFrames int            `json:"total_frames"`
	Chunks      []LabeledChunk `json:"chunks"`
}

// ChunkFrameRanges derives a single chunk size from the aggregate frame
// count of all ranges and concurrencyLimit, then chunks every range on its
// own with that size. Remainders are not redistributed across ranges, so
// the number of chunks can exceed concurrencyLimit.
func ChunkFrameRanges(ranges []LabeledRange, concurrencyLimit int) (Plan, error) {
	if concurrencyLimit < 1 {
		return Plan{}, errors.ValidationField("concurrency_limit", fmt.Sprintf("concurrency limit must be >= 1, got %d", concurrencyLimit)).
			WithOp("chunker.ranges")
	}
	if len(ranges) == 0 {
		return Plan{}, errors.ValidationField("ranges", "at least one range is required").WithOp("chunker.ranges")
	}

	total := 0
	for _, r := range ranges {
		if strings.TrimSpace(r.Label) == "" {
			return Plan{}, errors.ValidationField("label", "range label is required").WithOp("chunker.ranges")
		}
		fr := models.FrameRange{Start: r.Start, End: r.End}
		if fr.Start < 1 || fr.FrameCount() < 1 {
			return Plan{}, errors.ValidationField("range", fmt.Sprintf("invalid frame range %s for %q", fr, r.Label)).
				WithOp("chunker.ranges")
		}
		if total > math.MaxInt-fr.FrameCount() {
			return Plan{}, errors.ValidationField("range", "total frame count overflows").WithOp("chunker.ranges")
		}
		total += fr.FrameCount()
	}

	size := max(1, ceilDiv(total, concurrencyLimit))

	plan := Plan{ChunkSize: size, TotalFrames: total}
	for _, r := range ranges {
		spans, err := ChunkFrameRange(r.Start, r.End, size)
		if err != nil {
			return Plan{}, err
		}
		for _, s := range spans {
			plan.Chunks = append(plan.Chunks, LabeledChunk{
				Label:      r.Label,
				Start:      s.Start,
				End:        s.End,
				SequenceID: models.SequenceID(r.Label, s.Start, s.End),
			})
		}
	}
	return plan, nil
}
