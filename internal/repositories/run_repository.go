package repositories

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"framefarm/internal/httpkit"
	"framefarm/internal/models"
	"framefarm/internal/pkg/errors"
	"framefarm/internal/report"
)

// Schema creates the run ledger tables. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS render_runs (
	session_id    TEXT PRIMARY KEY,
	job_name      TEXT NOT NULL,
	engine        TEXT NOT NULL,
	frame_start   INT NOT NULL,
	frame_end     INT NOT NULL,
	chunk_size    INT NOT NULL,
	chunk_count   INT NOT NULL,
	transport     TEXT NOT NULL,
	status        TEXT NOT NULL,
	failed_chunks INT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS render_runs_created_at_idx ON render_runs (created_at DESC);

CREATE TABLE IF NOT EXISTS render_chunks (
	session_id  TEXT NOT NULL REFERENCES render_runs (session_id) ON DELETE CASCADE,
	chunk_id    TEXT NOT NULL,
	seq         INT NOT NULL,
	frame_start INT NOT NULL,
	frame_end   INT NOT NULL,
	ok          BOOLEAN NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	code        TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (session_id, chunk_id)
);
`

// RunStore records runs and their chunk outcomes.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.Run) error
	FinishRun(ctx context.Context, rep *report.JobReport) error
	GetRun(ctx context.Context, sessionID string) (*models.Run, error)
	ListRuns(ctx context.Context, limit int) ([]models.Run, error)
}

type RunRepository struct {
	db *pgxpool.Pool
}

func NewRunRepository(db *pgxpool.Pool) *RunRepository {
	return &RunRepository{db: db}
}

// EnsureSchema applies Schema.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return errors.Wrap(err, "runs.schema", "apply run ledger schema")
	}
	return nil
}

// CreateRun inserts run in the running state and fills CreatedAt.
func (r *RunRepository) CreateRun(ctx context.Context, run *models.Run) error {
	if run.Status == "" {
		run.Status = models.RunRunning
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO render_runs
			(session_id, job_name, engine, frame_start, frame_end, chunk_size, chunk_count, transport, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at
	`, run.SessionID, run.Job, run.Engine, run.FrameStart, run.FrameEnd,
		run.ChunkSize, run.ChunkCount, run.Transport, string(run.Status)).Scan(&run.CreatedAt)

	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return errors.Conflict("run already recorded").WithField("session_id", run.SessionID)
		}
		return wrapDB(err, "runs.create")
	}
	return nil
}

// FinishRun stores every chunk outcome of rep and closes the run.
func (r *RunRepository) FinishRun(ctx context.Context, rep *report.JobReport) error {
	sum := rep.Summary()
	status := models.RunSucceeded
	if sum.Failed > 0 {
		status = models.RunFailed
	}
	finished := rep.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
			UPDATE render_runs
			SET status=$2, failed_chunks=$3, finished_at=$4
			WHERE session_id=$1
		`, rep.SessionID, string(status), sum.Failed, finished)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return errors.NotFound("run", rep.SessionID)
		}

		batch := &pgx.Batch{}
		for i, c := range chunkRows(rep) {
			batch.Queue(`
				INSERT INTO render_chunks
					(session_id, chunk_id, seq, frame_start, frame_end, ok, message, error, code)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
				ON CONFLICT (session_id, chunk_id) DO UPDATE
				SET ok=EXCLUDED.ok, message=EXCLUDED.message, error=EXCLUDED.error, code=EXCLUDED.code
			`, rep.SessionID, c.ChunkID, i, c.FrameStart, c.FrameEnd, c.OK, c.Message, c.Error, c.Code)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		if errors.IsNotFound(err) {
			return err
		}
		return wrapDB(err, "runs.finish")
	}
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, sessionID string) (*models.Run, error) {
	var run models.Run
	var status string
	err := r.db.QueryRow(ctx, `
		SELECT session_id, job_name, engine, frame_start, frame_end, chunk_size, chunk_count,
		       transport, status, failed_chunks, created_at, finished_at
		FROM render_runs
		WHERE session_id=$1
	`, sessionID).Scan(
		&run.SessionID,
		&run.Job,
		&run.Engine,
		&run.FrameStart,
		&run.FrameEnd,
		&run.ChunkSize,
		&run.ChunkCount,
		&run.Transport,
		&status,
		&run.FailedChunks,
		&run.CreatedAt,
		&run.FinishedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NotFound("run", sessionID)
		}
		return nil, wrapDB(err, "runs.get")
	}
	run.Status = models.RunStatus(status)

	rows, err := r.db.Query(ctx, `
		SELECT chunk_id, seq, frame_start, frame_end, ok, message, error, code
		FROM render_chunks
		WHERE session_id=$1
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, wrapDB(err, "runs.get")
	}
	defer rows.Close()

	for rows.Next() {
		var c models.RunChunk
		if err := rows.Scan(&c.ChunkID, &c.Seq, &c.FrameStart, &c.FrameEnd, &c.OK, &c.Message, &c.Error, &c.Code); err != nil {
			return nil, wrapDB(err, "runs.get")
		}
		run.Chunks = append(run.Chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB(err, "runs.get")
	}
	return &run, nil
}

// ListRuns returns the most recent runs without their chunks.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT session_id, job_name, engine, frame_start, frame_end, chunk_size, chunk_count,
		       transport, status, failed_chunks, created_at, finished_at
		FROM render_runs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, wrapDB(err, "runs.list")
	}
	defer rows.Close()

	out := []models.Run{}
	for rows.Next() {
		var run models.Run
		var status string
		if err := rows.Scan(&run.SessionID, &run.Job, &run.Engine, &run.FrameStart, &run.FrameEnd,
			&run.ChunkSize, &run.ChunkCount, &run.Transport, &status, &run.FailedChunks,
			&run.CreatedAt, &run.FinishedAt); err != nil {
			return nil, wrapDB(err, "runs.list")
		}
		run.Status = models.RunStatus(status)
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB(err, "runs.list")
	}
	return out, nil
}

// Ping checks the database connection.
func (r *RunRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func chunkRows(rep *report.JobReport) []models.RunChunk {
	out := make([]models.RunChunk, len(rep.Entries))
	for i, e := range rep.Entries {
		out[i] = models.RunChunk{
			ChunkID:    e.ChunkID,
			Seq:        i,
			FrameStart: e.Start,
			FrameEnd:   e.End,
			OK:         e.OK,
			Message:    e.Message,
			Error:      e.Error,
			Code:       e.Code,
		}
	}
	return out
}

func wrapDB(err error, op string) error {
	if httpkit.IsUndefinedTable(err) {
		return errors.WrapWithCode(err, errors.CodeUnavailable, op, "run ledger schema missing; run EnsureSchema")
	}
	return errors.Wrap(err, op, "run ledger query failed")
}
