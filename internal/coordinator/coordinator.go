// Package coordinator runs a render job end to end: validate, upload the
// project, chunk, dispatch, aggregate and record the run.
package coordinator

import (
	"context"
	"time"

	"framefarm/internal/chunker"
	"framefarm/internal/dispatch"
	"framefarm/internal/models"
	"framefarm/internal/pkg/errors"
	"framefarm/internal/pkg/logger"
	"framefarm/internal/ports"
	"framefarm/internal/report"
	"framefarm/internal/repositories"
	"framefarm/internal/session"
)

// InvokerFactory binds a chunk transport to the session of one run.
type InvokerFactory func(s session.Session) dispatch.Invoker

type Deps struct {
	Store    ports.StorageProvider
	Invokers InvokerFactory
	// Runs is optional; nil disables the run ledger.
	Runs      repositories.RunStore
	Transport string
	Dispatch  dispatch.Options
	Log       *logger.Logger
}

type Coordinator struct {
	store     ports.StorageProvider
	invokers  InvokerFactory
	runs      repositories.RunStore
	transport string
	opts      dispatch.Options
	base      *logger.Logger
	log       *logger.Logger
}

func New(d Deps) *Coordinator {
	if d.Log == nil {
		d.Log = logger.NewDefault()
	}
	if d.Transport == "" {
		d.Transport = "http"
	}
	d.Dispatch.Log = d.Log
	return &Coordinator{
		store:     d.Store,
		invokers:  d.Invokers,
		runs:      d.Runs,
		transport: d.Transport,
		opts:      d.Dispatch,
		base:      d.Log,
		log:       d.Log.WithComponent("coordinator"),
	}
}

// Plan is the chunk layout of a job, computed without remote work.
type Plan struct {
	Job       string         `json:"job"`
	Frames    int            `json:"frames"`
	ChunkSize int            `json:"chunk_size"`
	Chunks    []models.Chunk `json:"-"`
}

// PlanJob validates spec and chunks it.
func PlanJob(spec *models.JobSpec) (Plan, error) {
	chunks, err := chunker.JobChunks(spec)
	if err != nil {
		return Plan{}, err
	}
	if len(chunks) == 0 {
		return Plan{}, errors.Internalf("job %s produced no chunks for %d frames", spec.Name(), spec.FrameCount()).
			WithOp("coordinator.plan")
	}
	return Plan{
		Job:       spec.Name(),
		Frames:    spec.FrameCount(),
		ChunkSize: chunker.ResolvedChunkSize(spec),
		Chunks:    chunks,
	}, nil
}

// Result is what a finished run hands back to the caller.
type Result struct {
	Session session.Session
	Plan    Plan
	Report  *report.JobReport
}

// Run renders spec. Validation and upload errors are returned before any
// chunk is dispatched. After dispatch the only error is a
// *report.JobFailedError, returned together with the full Result.
func (c *Coordinator) Run(ctx context.Context, spec *models.JobSpec) (*Result, error) {
	plan, err := PlanJob(spec)
	if err != nil {
		return nil, err
	}

	sess := session.New()
	ctx = logger.ContextWithSessionID(ctx, sess.ID)
	ctx = logger.ContextWithJobName(ctx, spec.Name())
	log := c.log.FromContext(ctx)

	log.Info("run starting",
		"frames", plan.Frames,
		"chunk_size", plan.ChunkSize,
		"chunks", len(plan.Chunks),
		"engine", string(spec.Engine()),
		"eco_mode", spec.EcoMode(),
		"transport", c.transport,
	)

	if _, err := session.NewUploader(c.store, sess, c.base).UploadProject(ctx, spec.ProjectFile()); err != nil {
		return nil, err
	}

	if c.runs != nil {
		if err := c.runs.CreateRun(ctx, c.runRecord(sess, spec, plan)); err != nil {
			return nil, errors.Wrap(err, "coordinator.run", "record run")
		}
	}

	started := time.Now().UTC()
	results := dispatch.New(c.invokers(sess), c.opts).Dispatch(ctx, plan.Chunks)

	rep, aggErr := report.Aggregate(sess.ID, results)
	rep.Job = spec.Name()
	rep.StartedAt = started
	rep.FinishedAt = time.Now().UTC()

	if c.runs != nil {
		// A ledger failure after dispatch does not fail the job.
		if err := c.runs.FinishRun(context.WithoutCancel(ctx), rep); err != nil {
			c.log.LogError(ctx, "failed to record run outcome", err)
		}
	}

	sum := rep.Summary()
	res := &Result{Session: sess, Plan: plan, Report: rep}
	if aggErr != nil {
		log.Error("run failed", "failed_chunks", sum.Failed, "chunks", sum.Chunks, "duration", rep.FinishedAt.Sub(started).String())
		return res, aggErr
	}

	log.Info("run finished", "chunks", sum.Chunks, "frames", sum.Frames, "duration", rep.FinishedAt.Sub(started).String())
	return res, nil
}

func (c *Coordinator) runRecord(sess session.Session, spec *models.JobSpec, plan Plan) *models.Run {
	fr := spec.Frames()
	return &models.Run{
		SessionID:  sess.ID,
		Job:        spec.Name(),
		Engine:     string(spec.Engine()),
		FrameStart: fr.Start,
		FrameEnd:   fr.End,
		ChunkSize:  plan.ChunkSize,
		ChunkCount: len(plan.Chunks),
		Transport:  c.transport,
		Status:     models.RunRunning,
	}
}
