package pipeline

import (
	"context"
	"sort"

	"videopipe/internal/jobs"
	"videopipe/internal/logging"
)

// StatusSummary is a point-in-time view of the worker pool.
type StatusSummary struct {
	Running      bool                `json:"running"`
	Workers      int                 `json:"workers"`
	ActiveJobs   []string            `json:"active_jobs"`
	FinishedJobs int                 `json:"finished_jobs"`
	LastError    string              `json:"last_error,omitempty"`
	LastJobID    string              `json:"last_job_id,omitempty"`
	LastStatus   jobs.Status         `json:"last_status,omitempty"`
	JobStats     map[jobs.Status]int `json:"job_stats"`
}

// Status returns the latest pool information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:      m.running,
		Workers:      m.workers,
		FinishedJobs: m.finished,
		ActiveJobs:   make([]string, 0, len(m.active)),
	}
	for id := range m.active {
		summary.ActiveJobs = append(summary.ActiveJobs, id)
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		summary.LastJobID = m.lastJob.ID
		summary.LastStatus = m.lastJob.Status
	}
	m.mu.RUnlock()
	sort.Strings(summary.ActiveJobs)

	stats, err := m.deps.Store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read job stats",
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_stats_failed"),
			logging.String(logging.FieldErrorHint, "check job database access"),
		)
	}
	summary.JobStats = stats
	return summary
}
