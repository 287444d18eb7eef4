package handlers

import (
	"net/http"

	"framefarm/internal/chunker"
	"framefarm/internal/coordinator"
	"framefarm/internal/httpkit"
	"framefarm/internal/models"
)

// PlanRequest uses the same keys as a job profile.
type PlanRequest struct {
	Name              string  `json:"name"`
	BlendFilePath     string  `json:"blend_file_path"`
	CameraName        string  `json:"camera_name"`
	StartFrame        int     `json:"start_frame"`
	EndFrame          int     `json:"end_frame"`
	RenderEngine      string  `json:"render_engine"`
	ConcurrencyTarget int     `json:"render_node_concurrency_target"`
	MinChunkSize      int     `json:"min_chunk_size"`
	MaxChunkSize      int     `json:"max_chunk_size"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	MaxSamples        int     `json:"render_max_samples"`
	AdaptiveThreshold float64 `json:"render_adaptive_threshold"`
	EcoMode           bool    `json:"eco_mode_enabled"`
}

func (p PlanRequest) spec() (*models.JobSpec, error) {
	engine, err := models.ParseRenderEngine(p.RenderEngine)
	if err != nil {
		return nil, err
	}
	return models.NewJobSpec(models.JobSpecParams{
		Name:              p.Name,
		Engine:            engine,
		Camera:            p.CameraName,
		ProjectFile:       p.BlendFilePath,
		Frames:            models.FrameRange{Start: p.StartFrame, End: p.EndFrame},
		Width:             p.Width,
		Height:            p.Height,
		Samples:           p.MaxSamples,
		AdaptiveThreshold: p.AdaptiveThreshold,
		EcoMode:           p.EcoMode,
		ConcurrencyTarget: p.ConcurrencyTarget,
		MinChunkSize:      p.MinChunkSize,
		MaxChunkSize:      p.MaxChunkSize,
	})
}

type planChunk struct {
	ID    string `json:"id"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

type planResponse struct {
	coordinator.Plan
	Chunks []planChunk `json:"chunks"`
}

// PostPlan chunks a job without rendering anything.
func (h *Handler) PostPlan(w http.ResponseWriter, r *http.Request) error {
	var req PlanRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return err
	}

	spec, err := req.spec()
	if err != nil {
		return err
	}
	plan, err := coordinator.PlanJob(spec)
	if err != nil {
		return err
	}

	out := planResponse{Plan: plan, Chunks: make([]planChunk, len(plan.Chunks))}
	for i, c := range plan.Chunks {
		out.Chunks[i] = planChunk{ID: c.ID(), Start: c.Start, End: c.End}
	}
	httpkit.WriteJSON(w, http.StatusOK, out)
	return nil
}

type PlanMultiRequest struct {
	Ranges           []chunker.LabeledRange `json:"ranges"`
	ConcurrencyLimit int                    `json:"concurrency_limit"`
}

// PostPlanMulti chunks several labeled ranges with one shared chunk size.
func (h *Handler) PostPlanMulti(w http.ResponseWriter, r *http.Request) error {
	var req PlanMultiRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return err
	}

	plan, err := chunker.ChunkFrameRanges(req.Ranges, req.ConcurrencyLimit)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, plan)
	return nil
}
