// Package session scopes one render run in remote storage. All objects of a
// run live under "<session id>/": the uploaded project file and the frames
// the render nodes write.
package session

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	contracts "framefarm/internal/contracts/renderer/v1"
	"framefarm/internal/models"
	"framefarm/internal/pkg/errors"
)

// FrameDigits is the zero padding of frame numbers in output keys.
const FrameDigits = 4

// FrameExt is the extension of rendered frames.
const FrameExt = ".exr"

type Session struct {
	ID string
}

// New starts a session with a fresh random id.
func New() Session {
	return Session{ID: uuid.NewString()}
}

// Parse accepts an existing session id, e.g. from the CLI or the API.
func Parse(id string) (Session, error) {
	u, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return Session{}, errors.ValidationField("session_id", fmt.Sprintf("invalid session id %q", id))
	}
	return Session{ID: u.String()}, nil
}

func (s Session) String() string { return s.ID }

// ProjectKey is where the project file is uploaded.
func (s Session) ProjectKey() string {
	return path.Join(s.ID, "project.blend")
}

// FramesPrefix is the key prefix of every rendered frame.
func (s Session) FramesPrefix() string {
	return s.ID + "/frames/"
}

// FrameKey is the key of one rendered frame of job.
func (s Session) FrameKey(job string, frame int) string {
	return fmt.Sprintf("%s%s_%0*d%s", s.FramesPrefix(), job, FrameDigits, frame, FrameExt)
}

// OutputPattern is the frame key pattern handed to the renderer; '#' marks
// the padded frame number.
func (s Session) OutputPattern(job string) string {
	return s.FramesPrefix() + job + "_" + strings.Repeat("#", FrameDigits) + FrameExt
}

// ChunkSpec builds the renderer request for c within this session.
func (s Session) ChunkSpec(c models.Chunk) contracts.ChunkSpec {
	job := c.Job
	return contracts.ChunkSpec{
		Job:               job.Name(),
		SessionID:         s.ID,
		ChunkID:           c.ID(),
		Engine:            string(job.Engine()),
		Camera:            job.Camera(),
		ProjectObjectKey:  s.ProjectKey(),
		FrameStart:        c.Start,
		FrameEnd:          c.End,
		Width:             job.Width(),
		Height:            job.Height(),
		ResolutionPercent: job.EffectiveResolutionPercent(),
		Samples:           job.Samples(),
		AdaptiveThreshold: job.EffectiveAdaptiveThreshold(),
		OutputPattern:     s.OutputPattern(job.Name()),
	}
}

// ExpectedFrameKeys lists the keys a successful render of spec produces.
func ExpectedFrameKeys(sessionID string, spec contracts.ChunkSpec) []string {
	s := Session{ID: sessionID}
	keys := make([]string, 0, spec.FrameEnd-spec.FrameStart+1)
	for f := spec.FrameStart; f <= spec.FrameEnd; f++ {
		keys = append(keys, s.FrameKey(spec.Job, f))
	}
	return keys
}
