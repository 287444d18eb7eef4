// Package jobconfig loads render job profiles from a TOML file.
//
// The file has a [RUN] table naming the current job, a [DEFAULT] table of
// shared settings and one table per job:
//
//	[RUN]
//	CURRENT_JOB = "intro"
//
//	[DEFAULT]
//	render_engine = "CYCLES"
//	render_node_concurrency_target = 20
//
//	[intro]
//	blend_file_path = "intro.blend"
//	camera_name = "Camera"
//	start_frame = 1
//	end_frame = 240
//
// Job specific keys are never inherited from [DEFAULT]; shared keys are read
// from the job table first and [DEFAULT] second.
package jobconfig

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"framefarm/internal/models"
	"framefarm/internal/pkg/errors"
)

// DefaultPath is used when neither a flag nor FRAMEFARM_JOBS_FILE names a file.
const DefaultPath = "jobs.toml"

const (
	runTable     = "RUN"
	defaultTable = "DEFAULT"
	currentKey   = "CURRENT_JOB"
)

// profile mirrors one job table. Pointers tell a missing key from a zero.
type profile struct {
	BlendFilePath *string `toml:"blend_file_path"`
	CameraName    *string `toml:"camera_name"`
	StartFrame    *int    `toml:"start_frame"`
	EndFrame      *int    `toml:"end_frame"`

	ConcurrencyTarget *int     `toml:"render_node_concurrency_target"`
	RenderEngine      *string  `toml:"render_engine"`
	MinChunkSize      *int     `toml:"min_chunk_size"`
	MaxChunkSize      *int     `toml:"max_chunk_size"`
	Width             *int     `toml:"width"`
	Height            *int     `toml:"height"`
	MaxSamples        *int     `toml:"render_max_samples"`
	AdaptiveThreshold *float64 `toml:"render_adaptive_threshold"`
	EcoMode           *bool    `toml:"eco_mode_enabled"`
}

type runSection struct {
	CurrentJob string `toml:"CURRENT_JOB"`
}

type header struct {
	Run *runSection `toml:"RUN"`
}

// File is a parsed profile file.
type File struct {
	path     string
	current  string
	defaults profile
	jobs     map[string]profile
}

// Read parses the profile file at path. Every failure is a config error.
func Read(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Configf("job profile file not found: %s", path).WithField("path", path)
		}
		return nil, errors.WrapWithCode(err, errors.CodeConfig, "jobconfig.read", "read job profile file").WithField("path", path)
	}

	var h header
	if err := toml.Unmarshal(b, &h); err != nil {
		return nil, decodeErr(err, path)
	}
	var tables map[string]profile
	if err := toml.Unmarshal(b, &tables); err != nil {
		return nil, decodeErr(err, path)
	}

	f := &File{path: path, jobs: make(map[string]profile, len(tables))}
	if h.Run != nil {
		f.current = strings.TrimSpace(h.Run.CurrentJob)
	}
	for name, p := range tables {
		switch name {
		case runTable:
		case defaultTable:
			f.defaults = p
		default:
			f.jobs[name] = p
		}
	}
	return f, nil
}

// Load reads path and returns the spec of job name, or of [RUN] CURRENT_JOB
// when name is empty.
func Load(path, name string) (*models.JobSpec, error) {
	f, err := Read(path)
	if err != nil {
		return nil, err
	}
	return f.Spec(name)
}

// CurrentJob is the [RUN] CURRENT_JOB value, empty when absent.
func (f *File) CurrentJob() string {
	return f.current
}

// Profiles lists the job tables in name order.
func (f *File) Profiles() []string {
	names := make([]string, 0, len(f.jobs))
	for n := range f.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Spec builds the validated JobSpec of profile name (CURRENT_JOB when empty).
// Missing or unknown profiles and missing keys are config errors; values
// that parse but break JobSpec rules are validation errors.
func (f *File) Spec(name string) (*models.JobSpec, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		if f.current == "" {
			return nil, errors.ConfigKey(runTable, currentKey, "no job selected: ["+runTable+"] "+currentKey+" is missing").
				WithField("path", f.path)
		}
		name = f.current
	}

	job, ok := f.jobs[name]
	if !ok {
		return nil, errors.Configf("unknown job profile %q (available: %s)", name, strings.Join(f.Profiles(), ", ")).
			WithField("profile", name).
			WithField("path", f.path)
	}

	r := &resolver{profile: name}

	blend := pick(r, "blend_file_path", job.BlendFilePath, nil)
	camera := pick(r, "camera_name", job.CameraName, nil)
	start := pick(r, "start_frame", job.StartFrame, nil)
	end := pick(r, "end_frame", job.EndFrame, nil)

	d := f.defaults
	target := pick(r, "render_node_concurrency_target", job.ConcurrencyTarget, d.ConcurrencyTarget)
	engine := pick(r, "render_engine", job.RenderEngine, d.RenderEngine)
	minSize := pick(r, "min_chunk_size", job.MinChunkSize, d.MinChunkSize)
	maxSize := pick(r, "max_chunk_size", job.MaxChunkSize, d.MaxChunkSize)
	width := pick(r, "width", job.Width, d.Width)
	height := pick(r, "height", job.Height, d.Height)
	samples := pick(r, "render_max_samples", job.MaxSamples, d.MaxSamples)
	threshold := pick(r, "render_adaptive_threshold", job.AdaptiveThreshold, d.AdaptiveThreshold)
	eco := pick(r, "eco_mode_enabled", job.EcoMode, d.EcoMode)

	if r.err != nil {
		return nil, r.err.WithField("path", f.path)
	}

	eng, err := models.ParseRenderEngine(engine)
	if err != nil {
		return nil, err
	}

	if blend != "" && !filepath.IsAbs(blend) {
		blend = filepath.Join(filepath.Dir(f.path), blend)
	}

	return models.NewJobSpec(models.JobSpecParams{
		Name:              name,
		Engine:            eng,
		Camera:            camera,
		ProjectFile:       blend,
		Frames:            models.FrameRange{Start: start, End: end},
		Width:             width,
		Height:            height,
		Samples:           samples,
		AdaptiveThreshold: threshold,
		EcoMode:           eco,
		ConcurrencyTarget: target,
		MinChunkSize:      minSize,
		MaxChunkSize:      maxSize,
	})
}

// resolver remembers the first missing key of a profile.
type resolver struct {
	profile string
	err     *errors.Error
}

// pick returns the job value, else the default. Job specific keys are
// passed with a nil default.
func pick[T any](r *resolver, key string, job, def *T) T {
	if job != nil {
		return *job
	}
	if def != nil {
		return *def
	}
	if r.err == nil {
		msg := "missing key " + key + " in [" + r.profile + "]"
		if !jobOnlyKeys[key] {
			msg += " and [" + defaultTable + "]"
		}
		r.err = errors.ConfigKey(r.profile, key, msg)
	}
	var zero T
	return zero
}

var jobOnlyKeys = map[string]bool{
	"blend_file_path": true,
	"camera_name":     true,
	"start_frame":     true,
	"end_frame":       true,
}

func decodeErr(err error, path string) error {
	var derr *toml.DecodeError
	if errors.As(err, &derr) {
		row, col := derr.Position()
		return errors.WrapWithCode(err, errors.CodeConfig, "jobconfig.read", "invalid TOML").
			WithField("path", path).
			WithField("line", row).
			WithField("column", col)
	}
	return errors.WrapWithCode(err, errors.CodeConfig, "jobconfig.read", "invalid job profile").WithField("path", path)
}
