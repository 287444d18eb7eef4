package models

import "time"

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is the ledger record of one submission.
type Run struct {
	SessionID    string     `json:"session_id"`
	Job          string     `json:"job"`
	Engine       string     `json:"engine"`
	FrameStart   int        `json:"frame_start"`
	FrameEnd     int        `json:"frame_end"`
	ChunkSize    int        `json:"chunk_size"`
	ChunkCount   int        `json:"chunk_count"`
	Transport    string     `json:"transport"`
	Status       RunStatus  `json:"status"`
	FailedChunks int        `json:"failed_chunks"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Chunks       []RunChunk `json:"chunks,omitempty"`
}

// RunChunk is the recorded outcome of one chunk of a Run.
type RunChunk struct {
	ChunkID    string `json:"chunk_id"`
	Seq        int    `json:"seq"`
	FrameStart int    `json:"frame_start"`
	FrameEnd   int    `json:"frame_end"`
	OK         bool   `json:"ok"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Code       string `json:"code,omitempty"`
}
