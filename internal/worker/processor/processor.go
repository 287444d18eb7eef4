package processor

import (
	"context"
	"time"

	contracts "framefarm/internal/contracts/renderer/v1"
	"framefarm/internal/pkg/errors"
	"framefarm/internal/pkg/logger"
	"framefarm/internal/ports"
	"framefarm/internal/worker/queue"
	"framefarm/internal/worker/renderer"
)

type Deps struct {
	Renderer renderer.Client
	SP       ports.StorageProvider
	// CleanupFailed deletes the frames of a failed chunk from the store.
	CleanupFailed bool
	Log           *logger.Logger
}

type Processor struct {
	log *logger.Logger

	inputHandler    *InputHandler
	outputHandler   *OutputHandler
	rendererAdapter *RendererAdapter
	cleanup         *Cleanup
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	return &Processor{
		log:             log,
		inputHandler:    NewInputHandler(d.SP),
		outputHandler:   NewOutputHandler(d.SP),
		rendererAdapter: NewRendererAdapter(d.Renderer),
		cleanup:         NewCleanup(d.CleanupFailed, d.SP, log),
	}
}

// ProcessChunk renders one queued chunk and returns the renderer's status.
// SuccessSentinel is only returned once every frame of the chunk is in the
// store. Any other status is passed through unchanged for the coordinator
// to record as a failure.
func (p *Processor) ProcessChunk(ctx context.Context, t queue.ChunkTask) (string, error) {
	if err := ValidateTask(t); err != nil {
		return "", errors.Wrap(err, "processor.validate", "invalid task")
	}

	ctx = logger.ContextWithSessionID(ctx, t.SessionID)
	ctx = logger.ContextWithJobName(ctx, t.Spec.Job)
	log := p.log.FromContext(ctx).WithChunk(t.ChunkID, t.Spec.FrameStart, t.Spec.FrameEnd)

	// 1. Project
	if err := p.inputHandler.EnsureProject(ctx, t.Spec); err != nil {
		return "", p.fail(ctx, log, t, errors.Wrap(err, "processor.inputs", "project not available"))
	}

	// 2. Render
	log.Info("starting render", "engine", t.Spec.Engine, "timeout", t.Timeout().String())
	start := time.Now()
	status, err := p.rendererAdapter.Render(ctx, t)
	if err != nil {
		return "", p.fail(ctx, log, t, errors.Wrap(err, "processor.render", "render failed"))
	}
	if status != contracts.SuccessSentinel {
		log.Warn("renderer returned unexpected status", "status", status)
		p.removePartial(ctx, log, t)
		return status, nil
	}

	// 3. Frames
	if err := p.outputHandler.Verify(ctx, t); err != nil {
		return "", p.fail(ctx, log, t, err)
	}

	log.Info("chunk rendered", "duration_ms", time.Since(start).Milliseconds())
	return status, nil
}

func (p *Processor) fail(ctx context.Context, log *logger.Logger, t queue.ChunkTask, cause error) error {
	var fe *errors.Error
	if errors.As(cause, &fe) {
		log.Error("chunk failed",
			"code", string(fe.Code),
			"op", fe.Op,
			"message", cause.Error(),
		)
	} else {
		log.Error("chunk failed", "error", cause.Error())
	}

	p.removePartial(ctx, log, t)
	return cause
}

func (p *Processor) removePartial(ctx context.Context, log *logger.Logger, t queue.ChunkTask) {
	if !p.cleanup.enabled {
		return
	}
	// The chunk's own deadline may be what failed it.
	ctx = context.WithoutCancel(ctx)

	fc, err := p.outputHandler.Check(ctx, t)
	if err != nil {
		log.Debug("skipping partial frame cleanup", "error", err.Error())
		return
	}
	if n := p.cleanup.PartialFrames(ctx, fc.Present); n > 0 {
		log.Info("removed partial frames", "count", n)
	}
}
