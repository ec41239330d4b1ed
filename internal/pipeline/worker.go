package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"videopipe/internal/jobs"
	"videopipe/internal/logging"
	"videopipe/internal/notify"
)

func (m *Manager) runWorker(ctx context.Context, slot int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int(logging.FieldWorker, slot))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if slot == 0 {
			m.reclaim(ctx, logger)
		}

		job, err := m.claimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleNextError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitForWork(ctx)
			continue
		}
		m.process(ctx, slot, job)
	}
}

// claimNext claims the oldest claimable job. Losing a race for one id moves
// on to the next candidate.
func (m *Manager) claimNext(ctx context.Context) (*jobs.Job, error) {
	ids, err := m.deps.Store.NextClaimable(ctx, time.Now(), m.workers*2)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		job, err := m.deps.Store.Claim(ctx, id, uuid.NewString(), m.timings.Lease)
		switch {
		case err == nil:
			return job, nil
		case errors.Is(err, jobs.ErrAlreadyClaimed), errors.Is(err, jobs.ErrNotFound):
			continue
		default:
			return nil, err
		}
	}
	return nil, nil
}

func (m *Manager) handleNextError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logging.ErrorWithContext(logger, "failed to claim next job", "job_claim_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check job database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.timings.ErrorBackoff):
	}
}

func (m *Manager) waitForWork(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-time.After(m.timings.Poll):
	}
}

// reclaim releases lapsed claims. In-flight jobs whose worker vanished are
// failed by the store; their remote objects and local artifacts are removed
// here and the ERROR snapshot is published.
func (m *Manager) reclaim(ctx context.Context, logger *slog.Logger) {
	result, err := m.deps.Store.ReclaimExpired(ctx, time.Now())
	if err != nil {
		if ctx.Err() == nil {
			logging.WarnWithContext(logger, "reclaim expired leases failed; stuck jobs may remain", "lease_reclaim_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check job database access"),
			)
		}
		return
	}
	if result.Released > 0 {
		logger.Info("released expired claims",
			logging.Int64("count", result.Released),
			logging.String(logging.FieldEventType, "lease_released"),
		)
	}
	for _, id := range result.Failed {
		job, err := m.deps.Store.Get(ctx, id)
		if err != nil {
			continue
		}
		m.removeRemote(ctx, job)
		m.removeWorkDir(job.ID)
		m.publishEvent(job)
		logging.WarnWithContext(logger, "failed job after lease expiry", "lease_expired",
			logging.String(logging.FieldJobID, id),
			logging.String(logging.FieldErrorHint, "resubmit the job"),
			logging.String(logging.FieldImpact, "job ended in ERROR"),
		)
	}
}

func (m *Manager) publishEvent(job *jobs.Job) {
	if m.deps.Hub == nil || job == nil {
		return
	}
	if _, err := m.deps.Hub.Publish(job.ID, notify.FromJob(job)); err != nil {
		m.logger.Debug("event not published",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
		)
	}
}
