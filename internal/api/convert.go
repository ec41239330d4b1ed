package api

import (
	"sort"

	"videopipe/internal/jobs"
	"videopipe/internal/pipeline"
)

// FromJob converts a job record to its API representation. Internal claim
// bookkeeping and local paths are not exposed.
func FromJob(job *jobs.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:                  job.ID,
		Filename:            job.Filename,
		Category:            job.Category,
		FolderLabel:         job.FolderLabel,
		CropBottomPx:        job.CropBottomPx,
		AspectVariant:       string(job.AspectVariant),
		Status:              string(job.Status),
		ProgressPercent:     job.ProgressPercent,
		OriginalSizeBytes:   job.OriginalSizeBytes,
		CompressedSizeBytes: job.CompressedSizeBytes,
		PublishedURL:        job.PublishedURL,
		ErrorReason:         job.ErrorReason,
		Attempts:            job.Attempts,
	}
	if !job.Metadata.IsZero() {
		dto.Metadata = &Metadata{
			Title:       job.Metadata.Title,
			Description: job.Metadata.Description,
			Tags:        append([]string(nil), job.Metadata.Tags...),
		}
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromJobs converts a list of job records.
func FromJobs(list []*jobs.Job) []Job {
	out := make([]Job, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	return out
}

// FromStatusSummary converts the worker pool summary.
func FromStatusSummary(summary pipeline.StatusSummary) PipelineStatus {
	stats := make(map[string]int, len(summary.JobStats))
	for status, count := range summary.JobStats {
		stats[string(status)] = count
	}
	active := append([]string(nil), summary.ActiveJobs...)
	sort.Strings(active)
	return PipelineStatus{
		Running:      summary.Running,
		Workers:      summary.Workers,
		ActiveJobs:   active,
		FinishedJobs: summary.FinishedJobs,
		LastError:    summary.LastError,
		LastJobID:    summary.LastJobID,
		LastStatus:   string(summary.LastStatus),
		JobStats:     stats,
	}
}
