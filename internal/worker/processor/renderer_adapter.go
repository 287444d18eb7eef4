package processor

import (
	"context"
	"time"

	"framefarm/internal/pkg/errors"
	"framefarm/internal/worker/queue"
	"framefarm/internal/worker/renderer"
)

type RendererAdapter struct {
	client renderer.Client
}

func NewRendererAdapter(client renderer.Client) *RendererAdapter {
	return &RendererAdapter{client: client}
}

// Render sends the task's spec to the renderer, bounded by what is left of
// the timeout the coordinator granted the chunk after it sat in the queue.
// A task whose budget is already spent is not rendered.
func (ra *RendererAdapter) Render(ctx context.Context, t queue.ChunkTask) (string, error) {
	if dl, ok := t.Deadline(time.Now()); ok {
		if !time.Now().Before(dl) {
			return "", errors.Timeout("chunk " + t.ChunkID + " expired in queue").WithOp("processor.render")
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, dl)
		defer cancel()
	}
	return ra.client.RenderChunk(ctx, t.Spec)
}
