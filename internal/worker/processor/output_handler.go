package processor

import (
	"context"
	"strings"

	"framefarm/internal/pkg/errors"
	"framefarm/internal/ports"
	"framefarm/internal/session"
	"framefarm/internal/worker/queue"
)

type OutputHandler struct {
	sp ports.StorageProvider
}

func NewOutputHandler(sp ports.StorageProvider) *OutputHandler {
	return &OutputHandler{sp: sp}
}

// FrameCheck is the result of comparing a chunk's expected frames with the
// store.
type FrameCheck struct {
	Expected int
	Present  []string
	Missing  []string
}

// Check lists the frames of the task's session and sorts the expected keys
// into present and missing.
func (oh *OutputHandler) Check(ctx context.Context, t queue.ChunkTask) (FrameCheck, error) {
	expected := session.ExpectedFrameKeys(t.SessionID, t.Spec)
	res := FrameCheck{Expected: len(expected)}

	objs, err := oh.sp.ListObjects(ctx, session.Session{ID: t.SessionID}.FramesPrefix()+t.Spec.Job+"_")
	if err != nil {
		return res, errors.Wrap(err, "outputs.check", "list frames")
	}
	stored := make(map[string]bool, len(objs))
	for _, o := range objs {
		stored[o.Key] = true
	}

	for _, k := range expected {
		if stored[k] {
			res.Present = append(res.Present, k)
		} else {
			res.Missing = append(res.Missing, k)
		}
	}
	return res, nil
}

// Verify fails with a chunk execution error unless every expected frame of
// the task is in the store.
func (oh *OutputHandler) Verify(ctx context.Context, t queue.ChunkTask) error {
	fc, err := oh.Check(ctx, t)
	if err != nil {
		return err
	}
	if len(fc.Missing) == 0 {
		return nil
	}

	shown := fc.Missing
	if len(shown) > 5 {
		shown = shown[:5]
	}
	return errors.Newf(errors.CodeChunkExecution, "renderer reported success but %d of %d frames are missing: %s",
		len(fc.Missing), fc.Expected, strings.Join(shown, ", ")).
		WithOp("outputs.verify").
		WithField("missing", len(fc.Missing))
}
