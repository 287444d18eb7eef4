package models

import (
	"fmt"
	"math"
	"strings"

	"framefarm/internal/pkg/errors"
)

// RenderEngine names a supported render engine.
type RenderEngine string

const (
	EngineEevee  RenderEngine = "EEVEE"
	EngineCycles RenderEngine = "CYCLES"
)

// legacyEevee is the engine identifier older job profiles still carry.
const legacyEevee = "BLENDER_EEVEE_NEXT"

// Eco mode overrides.
const (
	EcoResolutionPercent  = 25
	EcoAdaptiveThreshold  = 0.2
	FullResolutionPercent = 100
)

// ParseRenderEngine normalizes an engine name. Unknown names are a
// validation error.
func ParseRenderEngine(s string) (RenderEngine, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch v {
	case string(EngineEevee), legacyEevee:
		return EngineEevee, nil
	case string(EngineCycles):
		return EngineCycles, nil
	default:
		return "", errors.ValidationField("render_engine", fmt.Sprintf("unsupported render engine %q", s))
	}
}

// Valid reports whether e is one of the supported engines.
func (e RenderEngine) Valid() bool {
	return e == EngineEevee || e == EngineCycles
}

// FrameRange is an inclusive, one-based range of frames.
type FrameRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// FrameCount is End - Start + 1.
func (r FrameRange) FrameCount() int {
	return r.End - r.Start + 1
}

// Contains reports whether other lies inside r.
func (r FrameRange) Contains(other FrameRange) bool {
	return r.Start <= other.Start && other.Start <= other.End && other.End <= r.End
}

func (r FrameRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// JobSpecParams carries the raw fields a JobSpec is built from.
type JobSpecParams struct {
	Name              string
	Engine            RenderEngine
	Camera            string
	ProjectFile       string
	Frames            FrameRange
	Width             int
	Height            int
	Samples           int
	AdaptiveThreshold float64
	EcoMode           bool
	ConcurrencyTarget int
	MinChunkSize      int
	MaxChunkSize      int
}

// Validate checks the parameters without touching disk or network.
func (p JobSpecParams) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return errors.ValidationField("name", "job name is required")
	case strings.TrimSpace(p.Camera) == "":
		return errors.ValidationField("camera_name", "camera is required")
	case strings.TrimSpace(p.ProjectFile) == "":
		return errors.ValidationField("blend_file_path", "project file is required")
	case p.Frames.Start < 1:
		return errors.ValidationField("start_frame", fmt.Sprintf("invalid frame range %s: start must be >= 1", p.Frames))
	case p.Frames.FrameCount() < 1:
		return errors.ValidationField("end_frame", fmt.Sprintf("invalid frame range %s: end before start", p.Frames))
	case !p.Engine.Valid():
		return errors.ValidationField("render_engine", fmt.Sprintf("unsupported render engine %q", p.Engine))
	case p.Width <= 0 || p.Height <= 0:
		return errors.ValidationField("resolution", fmt.Sprintf("resolution must be positive, got %dx%d", p.Width, p.Height))
	case p.Samples < 1:
		return errors.ValidationField("render_max_samples", "sample count must be >= 1")
	case math.IsNaN(p.AdaptiveThreshold) || p.AdaptiveThreshold < 0 || p.AdaptiveThreshold > 1:
		return errors.ValidationField("render_adaptive_threshold", fmt.Sprintf("adaptive threshold %v outside [0,1]", p.AdaptiveThreshold))
	case p.ConcurrencyTarget < 1:
		return errors.ValidationField("render_node_concurrency_target", "concurrency target must be >= 1")
	case p.MinChunkSize < 1:
		return errors.ValidationField("min_chunk_size", "min chunk size must be >= 1")
	case p.MinChunkSize > p.MaxChunkSize:
		return errors.ValidationField("max_chunk_size", fmt.Sprintf("min chunk size %d exceeds max chunk size %d", p.MinChunkSize, p.MaxChunkSize))
	}
	return nil
}

// JobSpec is the immutable description of one rendering job. Build it with
// NewJobSpec; the zero value is not valid.
type JobSpec struct {
	p JobSpecParams
}

// NewJobSpec validates p and freezes it into a JobSpec.
func NewJobSpec(p JobSpecParams) (*JobSpec, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &JobSpec{p: p}, nil
}

// Validate re-checks the spec. Specs built with NewJobSpec always pass.
func (j *JobSpec) Validate() error {
	if j == nil {
		return errors.Validation("job spec is nil")
	}
	return j.p.Validate()
}

func (j *JobSpec) Name() string               { return j.p.Name }
func (j *JobSpec) Engine() RenderEngine       { return j.p.Engine }
func (j *JobSpec) Camera() string             { return j.p.Camera }
func (j *JobSpec) ProjectFile() string        { return j.p.ProjectFile }
func (j *JobSpec) Frames() FrameRange         { return j.p.Frames }
func (j *JobSpec) FrameCount() int            { return j.p.Frames.FrameCount() }
func (j *JobSpec) Width() int                 { return j.p.Width }
func (j *JobSpec) Height() int                { return j.p.Height }
func (j *JobSpec) Samples() int               { return j.p.Samples }
func (j *JobSpec) EcoMode() bool              { return j.p.EcoMode }
func (j *JobSpec) ConcurrencyTarget() int     { return j.p.ConcurrencyTarget }
func (j *JobSpec) MinChunkSize() int          { return j.p.MinChunkSize }
func (j *JobSpec) MaxChunkSize() int          { return j.p.MaxChunkSize }
func (j *JobSpec) AdaptiveThreshold() float64 { return j.p.AdaptiveThreshold }

// Params returns a copy of the fields the spec was built from.
func (j *JobSpec) Params() JobSpecParams { return j.p }

// EffectiveResolutionPercent is the resolution percentage the renderer must
// use. Eco mode renders at a quarter of the configured resolution.
func (j *JobSpec) EffectiveResolutionPercent() int {
	if j.p.EcoMode {
		return EcoResolutionPercent
	}
	return FullResolutionPercent
}

// EffectiveAdaptiveThreshold is the adaptive sampling threshold the renderer
// must use. Eco mode overrides the configured value.
func (j *JobSpec) EffectiveAdaptiveThreshold() float64 {
	if j.p.EcoMode {
		return EcoAdaptiveThreshold
	}
	return j.p.AdaptiveThreshold
}

func (j *JobSpec) String() string {
	return fmt.Sprintf("JobSpec(name=%s engine=%s camera=%s frames=%s %dx%d samples=%d eco=%t target=%d chunk=[%d,%d])",
		j.p.Name, j.p.Engine, j.p.Camera, j.p.Frames, j.p.Width, j.p.Height,
		j.p.Samples, j.p.EcoMode, j.p.ConcurrencyTarget, j.p.MinChunkSize, j.p.MaxChunkSize)
}
