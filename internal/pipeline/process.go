package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"videopipe/internal/jobs"
	"videopipe/internal/logging"
	"videopipe/internal/publish"
	"videopipe/internal/services"
	"videopipe/internal/transcode"
)

const (
	phaseValidate  = "validate"
	phaseTranscode = "transcode"
	phaseUpload    = "upload"
	phaseFinalize  = "finalize"

	// Progress bands per phase.
	transcodeBandEnd = 50
	segmentsBandEnd  = 90
	manifestBandEnd  = 95
	publishedPercent = 100

	hlsDirName       = "hls"
	reasonLimit      = 240
	shutdownReason   = "interrupted by daemon shutdown"
	progressLogWidth = 5
)

var (
	errJobDeleted = errors.New("job deleted")
	errClaimLost  = errors.New("job claim lost")
)

// jobRun is the per-claim state of one job. Only the worker goroutine
// touches job; the watchers read the fixed id and token.
type jobRun struct {
	m       *Manager
	job     *jobs.Job
	id      string
	token   string
	ctx     context.Context
	logger  *slog.Logger
	workDir string
	sampler *logging.ProgressSampler
}

func (m *Manager) process(parent context.Context, slot int, job *jobs.Job) {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithWorker(ctx, slot)
	ctx = services.WithRequestID(ctx, uuid.NewString())

	run := &jobRun{
		m:       m,
		job:     job,
		id:      job.ID,
		token:   job.ClaimToken,
		ctx:     ctx,
		logger:  logging.WithContext(ctx, m.logger),
		workDir: m.workDir(job.ID),
		sampler: logging.NewProgressSampler(progressLogWidth),
	}
	m.setActive(job.ID, slot)
	defer func() { m.clearActive(run.job) }()

	run.logger.Info("job claimed",
		logging.String("filename", job.Filename),
		logging.String("folder_label", job.FolderLabel),
		logging.Int("crop_bottom_px", job.CropBottomPx),
		logging.Int(logging.FieldAttempt, job.Attempts),
		logging.String(logging.FieldEventType, "job_claimed"),
	)

	var watchers sync.WaitGroup
	watchers.Add(2)
	go run.heartbeatLoop(&watchers, cancel)
	go run.watchDeletion(&watchers, cancel)

	err := run.execute()
	cause := context.Cause(ctx)
	cancel(nil)
	watchers.Wait()

	if err == nil {
		return
	}
	switch {
	case errors.Is(cause, errJobDeleted), errors.Is(err, jobs.ErrNotFound):
		run.handleDeleted()
	case errors.Is(cause, errClaimLost), errors.Is(err, jobs.ErrConflict):
		run.abandon(err)
	case parent.Err() != nil:
		run.interrupted()
	default:
		run.fail(err)
	}
}

func (r *jobRun) execute() error {
	probe, err := r.validate()
	if err != nil {
		return err
	}
	if err := r.advance(r.ctx, jobs.StatusProcessingTranscode, jobs.Fields{ProgressPercent: jobs.Progress(0)}); err != nil {
		return err
	}
	r.m.suggestMetadata(r.ctx, r.job)

	set, err := r.transcode(probe)
	if err != nil {
		return err
	}
	if err := r.advance(r.ctx, jobs.StatusUploading, jobs.Fields{
		ProgressPercent:     jobs.Progress(transcodeBandEnd),
		CompressedSizeBytes: jobs.Size(set.TotalBytes),
	}); err != nil {
		return err
	}

	url, err := r.upload(set)
	if err != nil {
		return err
	}
	return r.finalize(url)
}

func (r *jobRun) validate() (transcode.Probe, error) {
	ctx := services.WithPhase(r.ctx, phaseValidate)
	probe, err := r.m.deps.Transcoder.Validate(ctx, r.job.SourceRef, r.job.CropBottomPx)
	if err != nil {
		return transcode.Probe{}, err
	}
	r.logger.Info("source validated",
		logging.Int("width", probe.Width),
		logging.Int("height", probe.Height),
		logging.Float64("duration_seconds", probe.DurationSeconds),
		logging.String("video_codec", probe.VideoCodec),
		logging.String(logging.FieldEventType, "source_validated"),
	)
	return probe, nil
}

func (r *jobRun) transcode(probe transcode.Probe) (transcode.SegmentSet, error) {
	ctx := services.WithPhase(r.ctx, phaseTranscode)
	outDir := filepath.Join(r.workDir, hlsDirName)
	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return transcode.SegmentSet{}, services.Wrap(services.ErrFatal, phaseTranscode, "prepare work dir", r.workDir, err)
	}

	var set transcode.SegmentSet
	err := r.withRetry(ctx, phaseTranscode, r.m.timings.Transcode, func(attemptCtx context.Context, attempt int) error {
		if err := os.RemoveAll(outDir); err != nil {
			return services.Wrap(services.ErrFatal, phaseTranscode, "reset output", outDir, err)
		}
		var err error
		set, err = r.m.deps.Transcoder.Transcode(attemptCtx, r.job.SourceRef, outDir, r.job.CropBottomPx,
			transcode.WithDuration(probe.DurationSeconds),
			transcode.WithProgress(func(percent float64) {
				r.reportProgress(phaseTranscode, int(percent*transcodeBandEnd/100))
			}),
		)
		return err
	})
	return set, err
}

func (r *jobRun) upload(set transcode.SegmentSet) (string, error) {
	ctx := services.WithPhase(r.ctx, phaseUpload)
	ledger := publish.NewLedger()
	segments := len(set.Segments)

	var url string
	err := r.withRetry(ctx, phaseUpload, r.m.timings.Upload, func(attemptCtx context.Context, attempt int) error {
		var err error
		url, err = r.m.deps.Uploader.Publish(attemptCtx, set.Dir, r.job.ID, r.job.FolderLabel,
			publish.WithLedger(ledger),
			publish.WithProgress(func(done, total int, manifest bool) {
				r.reportProgress(phaseUpload, uploadPercent(done, segments, manifest))
			}),
		)
		return err
	})
	return url, err
}

func uploadPercent(done, segments int, manifest bool) int {
	if manifest {
		return manifestBandEnd
	}
	if segments <= 0 {
		return transcodeBandEnd
	}
	if done > segments {
		done = segments
	}
	return transcodeBandEnd + (segmentsBandEnd-transcodeBandEnd)*done/segments
}

func (r *jobRun) finalize(url string) error {
	ctx := services.WithPhase(r.ctx, phaseFinalize)
	if r.m.timings.Finalize > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.m.timings.Finalize)
		defer cancel()
	}
	source := r.job.SourceRef
	if err := r.advance(ctx, jobs.StatusPublished, jobs.Fields{
		ProgressPercent: jobs.Progress(publishedPercent),
		PublishedURL:    url,
		ClearSourceRef:  true,
	}); err != nil {
		return err
	}

	r.m.removeSource(r.job.ID, source)
	r.m.removeWorkDir(r.job.ID)
	r.logger.Info("job published",
		logging.String("url", url),
		logging.Int64("compressed_size_bytes", r.job.CompressedSizeBytes),
		logging.String(logging.FieldEventType, "job_published"),
	)
	return nil
}

// advance commits a status change and publishes the committed snapshot.
func (r *jobRun) advance(ctx context.Context, next jobs.Status, fields jobs.Fields) error {
	from := r.job.Status
	updated, err := r.m.deps.Store.UpdateStatus(ctx, r.job.ID, r.job.Expect(), next, fields)
	if err != nil {
		return err
	}
	r.job = updated
	r.m.publishEvent(updated)
	r.logger.Info("job status changed",
		logging.String("from", string(from)),
		logging.String("to", string(next)),
		logging.Int(logging.FieldProgressPercent, updated.ProgressPercent),
		logging.String(logging.FieldEventType, "status_changed"),
	)
	return nil
}

// reportProgress persists a higher percentage and publishes it. Failures are
// left to the watchers, which notice deletion or a lost claim.
func (r *jobRun) reportProgress(phase string, percent int) {
	if percent <= r.job.ProgressPercent {
		return
	}
	stored, err := r.m.deps.Store.UpdateProgress(r.ctx, r.job.ID, r.token, percent)
	if err != nil {
		r.logger.Debug("progress not recorded", logging.Int(logging.FieldProgressPercent, percent), logging.Error(err))
		return
	}
	if stored <= r.job.ProgressPercent {
		return
	}
	r.job.ProgressPercent = stored
	r.m.publishEvent(r.job)
	if r.sampler.ShouldLog(float64(stored), phase) {
		r.logger.Info("job progress",
			logging.String(logging.FieldPhase, phase),
			logging.Int(logging.FieldProgressPercent, stored),
			logging.String(logging.FieldEventType, "job_progress"),
		)
	}
}

// withRetry runs fn up to maxAttempts times. Only transient failures are
// retried; each attempt gets its own timeout.
func (r *jobRun) withRetry(ctx context.Context, phase string, timeout time.Duration, fn func(context.Context, int) error) error {
	var err error
	for attempt := 1; attempt <= r.m.maxAttempts; attempt++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		err = fn(attemptCtx, attempt)
		cancel()
		if err == nil {
			if attempt > 1 {
				r.logger.Info("phase recovered after retry",
					logging.String(logging.FieldPhase, phase),
					logging.Int(logging.FieldAttempt, attempt),
					logging.String(logging.FieldEventType, "phase_recovered"),
				)
			}
			return nil
		}
		if ctx.Err() != nil || !services.Retryable(err) || attempt == r.m.maxAttempts {
			return err
		}
		delay := services.Backoff(r.m.timings.RetryBase, r.m.timings.RetryMax, attempt)
		logging.WarnWithContext(r.logger, "phase attempt failed; retrying", "phase_retry",
			logging.String(logging.FieldPhase, phase),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Int("max_attempts", r.m.maxAttempts),
			logging.Duration("retry_in", delay),
			logging.Error(err),
			logging.String(logging.FieldErrorKind, string(services.Classify(err))),
			logging.String(logging.FieldErrorHint, "transient failure; retrying with backoff"),
			logging.String(logging.FieldImpact, "job delayed"),
		)
		if sleepErr := services.Sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
	return err
}

func (m *Manager) workDir(id string) string {
	return filepath.Join(m.cfg.Paths.WorkDir, id)
}

func (m *Manager) stagingDir(id string) string {
	return filepath.Join(m.cfg.Paths.StagingDir, id)
}
