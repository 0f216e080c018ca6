package entity

import "github.com/google/uuid"

// CameraSpec is one requested viewpoint inside an export request.
type CameraSpec struct {
	Label string  `json:"label"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// ExportRequestMessage is the inbound message from the export.request queue.
type ExportRequestMessage struct {
	JobID            uuid.UUID    `json:"job_id"`
	UserID           string       `json:"user_id"`
	VideoKey         string       `json:"video_key"`
	FileSize         int64        `json:"file_size"`
	SamplesPerSecond float64      `json:"samples_per_second"`
	Aspect           string       `json:"aspect"`
	Cameras          []CameraSpec `json:"cameras"`
	UserEmail        string       `json:"user_email"`
}

// ExportStatusMessage is the outbound message published to the export.status
// queue.
type ExportStatusMessage struct {
	JobID        uuid.UUID `json:"job_id"`
	UserID       string    `json:"user_id"`
	Status       JobStatus `json:"status"`
	VideoKey     string    `json:"video_key"`
	ArchiveKey   string    `json:"archive_key,omitempty"`
	FrameCount   int       `json:"frame_count,omitempty"`
	CellsTotal   int       `json:"cells_total,omitempty"`
	CellsSkipped int       `json:"cells_skipped,omitempty"`
	Duration     float64   `json:"duration_seconds,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
}
