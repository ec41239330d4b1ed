package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"videopipe/internal/jobs"
	"videopipe/internal/logging"
)

// heartbeatLoop extends the lease until the job context ends. A missing
// record or a foreign claim cancels the job.
func (r *jobRun) heartbeatLoop(wg *sync.WaitGroup, cancel context.CancelCauseFunc) {
	defer wg.Done()
	interval := r.m.timings.Heartbeat
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			err := r.m.deps.Store.Heartbeat(r.ctx, r.id, r.token, r.m.timings.Lease)
			switch {
			case err == nil:
			case errors.Is(err, jobs.ErrNotFound):
				cancel(errJobDeleted)
				return
			case errors.Is(err, jobs.ErrConflict):
				if r.ctx.Err() == nil {
					cancel(errClaimLost)
				}
				return
			case errors.Is(err, context.Canceled):
				return
			default:
				logging.WarnWithContext(r.logger, "heartbeat update failed", "heartbeat_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check job database access"),
					logging.String(logging.FieldImpact, "lease may expire if this persists"),
				)
			}
		}
	}
}

// watchDeletion polls for the record and cancels the job once it is gone.
func (r *jobRun) watchDeletion(wg *sync.WaitGroup, cancel context.CancelCauseFunc) {
	defer wg.Done()
	interval := r.m.timings.CancelPoll
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			exists, err := r.m.deps.Store.Exists(r.ctx, r.id)
			if err != nil {
				continue
			}
			if !exists {
				r.logger.Info("job record removed; cancelling work",
					logging.String(logging.FieldEventType, "job_cancelled"),
				)
				cancel(errJobDeleted)
				return
			}
		}
	}
}
