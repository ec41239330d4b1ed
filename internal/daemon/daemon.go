package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"videopipe/internal/category"
	"videopipe/internal/config"
	"videopipe/internal/deps"
	"videopipe/internal/ingest"
	"videopipe/internal/jobs"
	"videopipe/internal/logging"
	"videopipe/internal/notify"
	"videopipe/internal/pipeline"
	"videopipe/internal/publish"
)

// LockFileName is created under paths.log_dir while a daemon runs.
const LockFileName = "videopiped.lock"

// maxEventWait caps a single long-poll request.
const maxEventWait = 25 * time.Second

// StorageReporter summarizes the object store.
type StorageReporter interface {
	Stats(ctx context.Context) (publish.StorageStats, error)
}

// Dependencies are the components a daemon coordinates.
type Dependencies struct {
	Store    *jobs.Store
	Manager  *pipeline.Manager
	Ingest   *ingest.Service
	Hub      *notify.Hub
	Storage  StorageReporter
	Resolver *category.Resolver
}

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   Dependencies

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DBPath       string
	LockFilePath string
	LogPath      string
	Pipeline     pipeline.StatusSummary
	Dependencies []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, d Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || d.Store == nil || d.Manager == nil || d.Ingest == nil || d.Hub == nil {
		return nil, errors.New("daemon requires config, store, pipeline manager, ingest service, and event hub")
	}
	if d.Resolver == nil {
		d.Resolver = category.NewResolver(cfg.Categories.DefaultLabel, cfg.Categories.Extra)
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, LockFileName)
	daemon := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		deps:     d,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	daemon.api = newAPIServer(cfg.Paths.APIBind, daemon, logger)
	return daemon, nil
}

// Start acquires the daemon lock, launches the worker pool, and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another videopipe daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.deps.Manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start pipeline: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.deps.Manager.Stop()
		_ = d.lock.Unlock()
		return err
	}
	d.cancel = cancel

	d.running.Store(true)
	d.logger.Info("videopipe daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops the API and the worker pool and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.deps.Manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("videopipe daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.deps.Store.Close()
}

// Address returns the API listen address once started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DBPath:       d.deps.Store.Path(),
		LockFilePath: d.lockPath,
		LogPath:      filepath.Join(d.cfg.Paths.LogDir, logging.LogFileName),
		Pipeline:     d.deps.Manager.Status(ctx),
		Dependencies: deps.CheckBinaries(deps.Requirements(d.cfg)),
	}
}

// Submit stages a source and queues a new job.
func (d *Daemon) Submit(ctx context.Context, req ingest.Request) (*jobs.Job, error) {
	job, err := d.deps.Ingest.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	d.deps.Manager.Wake()
	return job, nil
}

// Resubmit queues a new job from a failed one.
func (d *Daemon) Resubmit(ctx context.Context, id string) (*jobs.Job, error) {
	job, err := d.deps.Ingest.Resubmit(ctx, id)
	if err != nil {
		return nil, err
	}
	d.deps.Manager.Wake()
	return job, nil
}

// Delete removes a job, cancelling in-flight work and published objects.
func (d *Daemon) Delete(ctx context.Context, id string) error {
	return d.deps.Manager.Delete(ctx, id)
}

// ListJobs returns jobs filtered by optional statuses.
func (d *Daemon) ListJobs(ctx context.Context, statuses []jobs.Status) ([]*jobs.Job, error) {
	return d.deps.Store.List(ctx, statuses...)
}

// GetJob returns one job.
func (d *Daemon) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	return d.deps.Store.Get(ctx, id)
}

// Events returns snapshots newer than since. A job the hub has not seen since
// the daemon started is seeded from its stored record first.
func (d *Daemon) Events(ctx context.Context, id string, since uint64, wait bool) ([]notify.Event, uint64, error) {
	if _, ok := d.deps.Hub.Last(id); !ok {
		job, err := d.deps.Store.Get(ctx, id)
		if err != nil {
			return nil, since, err
		}
		d.deps.Hub.Seed(id, notify.FromJob(job))
	}
	if wait {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxEventWait)
		defer cancel()
	}
	events, next, err := d.deps.Hub.Fetch(ctx, id, since, wait)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, since, nil
	}
	return events, next, err
}

// StorageStats summarizes the bucket.
func (d *Daemon) StorageStats(ctx context.Context) (publish.StorageStats, error) {
	if d.deps.Storage == nil {
		return publish.StorageStats{}, errors.New("object storage not configured")
	}
	return d.deps.Storage.Stats(ctx)
}

// Categories lists the known category ids.
func (d *Daemon) Categories() []category.Entry {
	return d.deps.Resolver.Entries()
}

// bucketName returns the configured bucket for status output.
func (d *Daemon) bucketName() string {
	return strings.TrimSpace(d.cfg.Storage.Bucket)
}
