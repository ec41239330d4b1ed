package notify

import (
	"time"

	"videopipe/internal/jobs"
)

// Event is one committed snapshot of a job.
type Event struct {
	Sequence            uint64      `json:"seq"`
	JobID               string      `json:"job_id"`
	Status              jobs.Status `json:"status"`
	ProgressPercent     int         `json:"progress_percent"`
	CompressedSizeBytes int64       `json:"compressed_size_bytes,omitempty"`
	PublishedURL        string      `json:"published_url,omitempty"`
	ErrorReason         string      `json:"error_reason,omitempty"`
	Time                time.Time   `json:"ts"`
}

// Terminal reports whether the event closes the job's stream.
func (e Event) Terminal() bool {
	return e.Status.IsTerminal()
}

// FromJob snapshots a stored job.
func FromJob(job *jobs.Job) Event {
	if job == nil {
		return Event{}
	}
	evt := Event{
		JobID:               job.ID,
		Status:              job.Status,
		ProgressPercent:     job.ProgressPercent,
		CompressedSizeBytes: job.CompressedSizeBytes,
		Time:                job.UpdatedAt,
	}
	if job.Status == jobs.StatusPublished {
		evt.PublishedURL = job.PublishedURL
	}
	if job.Status == jobs.StatusError {
		evt.ErrorReason = job.ErrorReason
	}
	return evt
}
