// Package v1 is the chunk render contract between the coordinator, the
// render nodes and the HTTP renderer.
package v1

// SuccessSentinel is the status the renderer returns once every frame of a
// chunk has been written. Any other status is a failed chunk.
const SuccessSentinel = "RENDERED"

// ChunkPath is the renderer endpoint for a single chunk.
const ChunkPath = "/render/chunk"

// ChunkSpec is the request body for ChunkPath.
//   - project_object_key: storage key of the uploaded project file
//   - output_pattern: storage key pattern for frames, '#' is the zero padded frame number
type ChunkSpec struct {
	Job               string  `json:"job"`
	SessionID         string  `json:"session_id"`
	ChunkID           string  `json:"chunk_id"`
	Engine            string  `json:"engine"`
	Camera            string  `json:"camera"`
	ProjectObjectKey  string  `json:"project_object_key"`
	FrameStart        int     `json:"frame_start"`
	FrameEnd          int     `json:"frame_end"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	ResolutionPercent int     `json:"resolution_percent"`
	Samples           int     `json:"samples"`
	AdaptiveThreshold float64 `json:"adaptive_threshold"`
	OutputPattern     string  `json:"output_pattern"`
}

// ChunkResponse is the renderer's reply to a ChunkSpec.
type ChunkResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}
