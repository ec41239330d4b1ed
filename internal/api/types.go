package api

import (
	"videopipe/internal/category"
	"videopipe/internal/deps"
	"videopipe/internal/notify"
	"videopipe/internal/publish"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a job record in a transport-friendly format.
type Job struct {
	ID                  string    `json:"id"`
	Filename            string    `json:"filename"`
	Category            string    `json:"category"`
	FolderLabel         string    `json:"folder_label"`
	CropBottomPx        int       `json:"crop_bottom_px"`
	AspectVariant       string    `json:"aspect_variant"`
	Status              string    `json:"status"`
	ProgressPercent     int       `json:"progress_percent"`
	OriginalSizeBytes   int64     `json:"original_size_bytes"`
	CompressedSizeBytes int64     `json:"compressed_size_bytes,omitempty"`
	PublishedURL        string    `json:"published_url,omitempty"`
	ErrorReason         string    `json:"error_reason,omitempty"`
	Attempts            int       `json:"attempts"`
	Metadata            *Metadata `json:"metadata,omitempty"`
	CreatedAt           string    `json:"created_at,omitempty"`
	UpdatedAt           string    `json:"updated_at,omitempty"`
}

// Metadata carries the suggested title, description, and tags.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// SubmitRequest is the body of POST /api/jobs.
type SubmitRequest struct {
	SourcePath    string `json:"source_path"`
	Filename      string `json:"filename,omitempty"`
	Category      string `json:"category"`
	CropBottomPx  int    `json:"crop_bottom_px"`
	AspectVariant string `json:"aspect_variant,omitempty"`
	Move          bool   `json:"move,omitempty"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// EventsResponse carries ordered snapshots newer than the requested sequence.
// Next is the cursor for the following request.
type EventsResponse struct {
	Events   []notify.Event `json:"events"`
	Next     uint64         `json:"next"`
	Terminal bool           `json:"terminal"`
}

// PipelineStatus summarizes the worker pool.
type PipelineStatus struct {
	Running      bool           `json:"running"`
	Workers      int            `json:"workers"`
	ActiveJobs   []string       `json:"active_jobs"`
	FinishedJobs int            `json:"finished_jobs"`
	LastError    string         `json:"last_error,omitempty"`
	LastJobID    string         `json:"last_job_id,omitempty"`
	LastStatus   string         `json:"last_status,omitempty"`
	JobStats     map[string]int `json:"job_stats"`
}

// DaemonStatus aggregates daemon runtime information.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DBPath       string         `json:"db_path"`
	LockFilePath string         `json:"lock_file_path"`
	LogPath      string         `json:"log_path"`
	Pipeline     PipelineStatus `json:"pipeline"`
	Dependencies []deps.Status  `json:"dependencies"`
}

// StorageStatsResponse reports what the bucket holds.
type StorageStatsResponse struct {
	Bucket string               `json:"bucket,omitempty"`
	Stats  publish.StorageStats `json:"stats"`
}

// CategoriesResponse lists the known category ids and labels.
type CategoriesResponse struct {
	Categories []category.Entry `json:"categories"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
