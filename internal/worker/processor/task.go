package processor

import (
	"strings"

	"framefarm/internal/pkg/errors"
	"framefarm/internal/session"
	"framefarm/internal/worker/queue"
)

// ValidateTask rejects tasks a render node cannot act on. Tasks come from
// the queue, so nothing upstream has checked them.
func ValidateTask(t queue.ChunkTask) error {
	if _, err := session.Parse(t.SessionID); err != nil {
		return err
	}
	if strings.TrimSpace(t.ChunkID) == "" {
		return errors.ValidationField("chunk_id", "missing chunk id")
	}
	if t.Spec.SessionID != t.SessionID {
		return errors.ValidationField("spec.session_id", "spec belongs to another session")
	}
	if t.Spec.ChunkID != t.ChunkID {
		return errors.ValidationField("spec.chunk_id", "spec belongs to another chunk")
	}
	if strings.TrimSpace(t.Spec.Job) == "" {
		return errors.ValidationField("spec.job", "missing job name")
	}
	if t.Spec.FrameStart < 0 || t.Spec.FrameEnd < t.Spec.FrameStart {
		return errors.ValidationField("spec.frames", "invalid frame range").
			WithField("start", t.Spec.FrameStart).
			WithField("end", t.Spec.FrameEnd)
	}
	if t.Spec.ProjectObjectKey == "" {
		return errors.ValidationField("spec.project_object_key", "missing project key")
	}
	if t.TimeoutSec < 0 {
		return errors.ValidationField("timeout_sec", "must not be negative")
	}
	return nil
}
