package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"videopipe/internal/jobs"
	"videopipe/internal/logging"
	"videopipe/internal/services"
)

const cleanupTimeout = 2 * time.Minute

// detached returns a context that survives the job's cancellation but keeps
// its logging values.
func (r *jobRun) detached() (context.Context, context.CancelFunc) {
	timeout := r.m.timings.Finalize
	if timeout <= 0 {
		timeout = cleanupTimeout
	}
	return context.WithTimeout(context.WithoutCancel(r.ctx), timeout)
}

// fail commits ERROR with a short reason. Remote objects are removed before
// the commit so subscribers never see ERROR next to a partial upload; the
// staged source and work dir go once ERROR is stored.
func (r *jobRun) fail(cause error) {
	ctx, cancel := r.detached()
	defer cancel()

	if r.job.Status == jobs.StatusUploading {
		r.m.removeRemote(ctx, r.job)
	}

	reason := failureReason(cause, r.job)
	logging.ErrorWithContext(r.logger, "job failed", "job_failed",
		logging.String("status", string(r.job.Status)),
		logging.String("reason", reason),
		logging.String(logging.FieldErrorKind, string(services.Classify(cause))),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, failureHint(cause)),
	)
	r.m.setLastError(cause)

	from, source := r.job.Status, r.job.SourceRef
	updated, err := r.m.deps.Store.UpdateStatus(ctx, r.job.ID, r.job.Expect(), jobs.StatusError, jobs.Fields{
		ErrorReason:    reason,
		ClearSourceRef: true,
	})
	switch {
	case err == nil:
		r.job = updated
		r.m.removeSource(updated.ID, source)
		r.m.removeWorkDir(updated.ID)
		r.m.publishEvent(updated)
		r.logger.Info("job status changed",
			logging.String("from", string(from)),
			logging.String("to", string(jobs.StatusError)),
			logging.String(logging.FieldEventType, "status_changed"),
		)
	case errors.Is(err, jobs.ErrNotFound):
		r.handleDeleted()
	case errors.Is(err, jobs.ErrConflict):
		r.abandon(err)
	default:
		r.m.removeWorkDir(r.job.ID)
		logging.ErrorWithContext(r.logger, "failed to persist job failure", "job_failure_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "lease expiry will fail the job on the next reclaim"),
		)
	}
}

// handleDeleted cleans up after the record was removed mid-flight.
func (r *jobRun) handleDeleted() {
	ctx, cancel := r.detached()
	defer cancel()
	r.m.purge(ctx, r.job)
	r.logger.Info("deleted job cleaned up",
		logging.String("status", string(r.job.Status)),
		logging.String(logging.FieldEventType, "job_deleted"),
	)
}

// abandon stops work without writing; another writer owns the job now.
func (r *jobRun) abandon(cause error) {
	r.m.removeWorkDir(r.job.ID)
	logging.WarnWithContext(r.logger, "job changed underneath worker; abandoning", "job_abandoned",
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "another writer updated the job"),
		logging.String(logging.FieldImpact, "this worker made no further writes"),
	)
}

// interrupted handles daemon shutdown. In-flight jobs cannot move back to
// PENDING, so they fail; claimed PENDING jobs become claimable once the
// lease lapses.
func (r *jobRun) interrupted() {
	if r.job.Status.IsInFlight() {
		r.fail(errors.New(shutdownReason))
		return
	}
	r.m.removeWorkDir(r.job.ID)
	r.logger.Info("job released by shutdown", logging.String(logging.FieldEventType, "job_interrupted"))
}

// failureReason is the user-visible summary of cause. Staging and work paths
// are replaced by the submitted filename.
func failureReason(cause error, job *jobs.Job) string {
	text := services.Summary(cause, 0)
	text = services.ScrubPaths(text, job.SourceRef, job.Filename)
	return services.Shorten(text, reasonLimit)
}

func failureHint(err error) string {
	switch services.Classify(err) {
	case services.KindValidation:
		return "fix the source or crop value and resubmit"
	case services.KindFatal:
		return "inspect diagnostics; retrying will not help"
	default:
		return "retry budget exhausted; resubmit once the cause is resolved"
	}
}

// Delete removes a job record. A worker holding the job notices the removal
// and cleans up; otherwise remote objects and local files are purged here.
func (m *Manager) Delete(ctx context.Context, id string) error {
	job, err := m.deps.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := m.deps.Store.Delete(ctx, id); err != nil {
		return err
	}
	if m.Owns(id) {
		m.logger.Info("job deleted while running; worker will cancel",
			logging.String(logging.FieldJobID, id),
			logging.String(logging.FieldEventType, "job_delete_requested"),
		)
		return nil
	}
	m.purge(ctx, job)
	return nil
}

// purge removes everything a job left behind.
func (m *Manager) purge(ctx context.Context, job *jobs.Job) {
	if job.Status != jobs.StatusPending {
		m.removeRemote(ctx, job)
	}
	m.removeWorkDir(job.ID)
	if err := os.RemoveAll(m.stagingDir(job.ID)); err != nil {
		m.logger.Warn("remove staged source failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "staging_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "the stale sweeper will retry"),
		)
	}
	if m.deps.Hub != nil {
		m.deps.Hub.Forget(job.ID)
	}
}

func (m *Manager) removeRemote(ctx context.Context, job *jobs.Job) {
	if m.deps.Uploader == nil {
		return
	}
	if _, err := m.deps.Uploader.DeletePrefix(ctx, job.FolderLabel, job.ID); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "remote cleanup failed", "remote_cleanup_failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the job prefix from the bucket manually"),
			logging.String(logging.FieldImpact, "orphaned objects remain in storage"),
		)
	}
}

func (m *Manager) removeWorkDir(id string) {
	_ = os.RemoveAll(m.workDir(id))
}

// removeSource deletes the raw upload after publication.
func (m *Manager) removeSource(id, source string) {
	if source != "" {
		_ = os.Remove(source)
	}
	dir := m.stagingDir(id)
	if source == "" || filepath.Dir(source) == dir {
		_ = os.RemoveAll(dir)
	}
}
