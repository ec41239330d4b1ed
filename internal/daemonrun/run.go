// Package daemonrun wires configuration into a running videopipe daemon.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"videopipe/internal/category"
	"videopipe/internal/config"
	"videopipe/internal/daemon"
	"videopipe/internal/deps"
	"videopipe/internal/ingest"
	"videopipe/internal/jobs"
	"videopipe/internal/logging"
	"videopipe/internal/metadata"
	"videopipe/internal/notifications"
	"videopipe/internal/notify"
	"videopipe/internal/pipeline"
	"videopipe/internal/publish"
	"videopipe/internal/staging"
	"videopipe/internal/transcode"
)

const (
	// PIDFileName is written under paths.log_dir while the daemon runs.
	PIDFileName = "videopiped.pid"

	sweepInterval  = time.Hour
	sweepGrace     = 5 * time.Minute
	startupTimeout = 10 * time.Second
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the videopipe daemon and blocks until SIGINT/SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if !cfg.StorageConfigured() {
		return errors.New("storage.endpoint and storage.bucket must be set before the daemon can publish")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logPath := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "videopipe*.log", Exclude: []string{logPath}},
	)
	logDependencySnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.LogDir, PIDFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := jobs.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open job store", "job_store_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.log_dir permissions"),
		)
		return err
	}
	// daemon.Close closes the store.

	hub := notify.NewHub(0, logger)
	if sink := notify.NewRedisSink(cfg.Events, logger); sink != nil {
		pingCtx, pingCancel := context.WithTimeout(signalCtx, startupTimeout)
		if err := sink.Ping(pingCtx); err != nil {
			logging.WarnWithContext(logger, "redis event mirror unreachable", "redis_unreachable",
				logging.String("addr", cfg.Events.RedisAddr),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check events.redis_addr"),
				logging.String(logging.FieldImpact, "external progress consumers may miss events"),
			)
		}
		pingCancel()
		hub.AddSink(sink)
		defer sink.Close()
	}

	notifySink := notifications.NewEventSink(notifications.NewService(cfg), cfg.Notifications, jobTitle(store), logger)
	hub.AddSink(notifySink)
	defer notifySink.Wait()

	bucket, err := publish.NewMinioBucket(cfg.Storage)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("object storage: %w", err)
	}
	checkCtx, checkCancel := context.WithTimeout(signalCtx, startupTimeout)
	if err := bucket.Check(checkCtx); err != nil {
		logging.WarnWithContext(logger, "object storage check failed", "storage_check_failed",
			logging.String("bucket", bucket.Name()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "verify storage endpoint, bucket, and credentials"),
			logging.String(logging.FieldImpact, "uploads will fail until storage is reachable"),
		)
	}
	checkCancel()

	uploader := publish.New(bucket, cfg, logger)
	resolver := category.NewResolver(cfg.Categories.DefaultLabel, cfg.Categories.Extra)
	manager := pipeline.NewManager(cfg, pipeline.Dependencies{
		Store:      store,
		Transcoder: transcode.New(cfg.Transcode.FFmpegBinary, cfg.Transcode.FFprobeBinary, logger),
		Uploader:   uploader,
		Hub:        hub,
		Metadata:   metadata.NewFromConfig(cfg.Metadata, logger),
	}, logger)

	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:    store,
		Manager:  manager,
		Ingest:   ingest.New(cfg, store, resolver, hub, logger),
		Hub:      hub,
		Storage:  uploader,
		Resolver: resolver,
	}, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running daemon and the api_bind address"),
		)
		return err
	}

	maxAge := time.Duration(cfg.Workflow.WorkDirMaxAgeHours) * time.Hour
	sweeper := staging.NewSweeper(sweepInterval, logger,
		staging.Target{Dir: cfg.Paths.WorkDir, Policy: WorkDirPolicy(manager)},
		staging.Target{Dir: cfg.Paths.StagingDir, Policy: StagingPolicy(store, maxAge)},
	)
	sweeper.Start(signalCtx)
	defer sweeper.Stop()

	<-signalCtx.Done()
	logger.Info("videopipe daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// WorkDirPolicy keeps only work directories of jobs a worker currently owns.
func WorkDirPolicy(manager *pipeline.Manager) staging.Policy {
	return staging.Policy{
		Grace: sweepGrace,
		Keep: func(_ context.Context, name string, _ time.Duration) bool {
			return manager.Owns(name)
		},
	}
}

// StagingPolicy keeps staged sources of unfinished jobs, and of failed jobs
// for maxAge so they can be resubmitted. Lookup errors keep the entry.
func StagingPolicy(store *jobs.Store, maxAge time.Duration) staging.Policy {
	return staging.Policy{
		Grace: sweepGrace,
		Keep: func(ctx context.Context, name string, age time.Duration) bool {
			job, err := store.Get(ctx, name)
			if err != nil {
				return !errors.Is(err, jobs.ErrNotFound)
			}
			switch job.Status {
			case jobs.StatusPublished:
				return false
			case jobs.StatusError:
				return maxAge <= 0 || age < maxAge
			default:
				return true
			}
		},
	}
}

// jobTitle prefers the suggested title and falls back to the filename.
func jobTitle(store *jobs.Store) notifications.TitleFunc {
	return func(ctx context.Context, jobID string) string {
		job, err := store.Get(ctx, jobID)
		if err != nil {
			return ""
		}
		if title := strings.TrimSpace(job.Metadata.Title); title != "" {
			return title
		}
		return job.Filename
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("metadata_enabled", cfg.Metadata.Enabled && strings.TrimSpace(cfg.Metadata.APIKey) != ""),
		logging.Bool("redis_mirror", strings.TrimSpace(cfg.Events.RedisAddr) != ""),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	}
	for _, status := range statuses {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	if missing := deps.Missing(statuses); len(missing) > 0 {
		logging.WarnWithContext(logger, "required binaries missing", "dependency_missing",
			logging.String("missing", strings.Join(missing, ", ")),
			logging.String(logging.FieldErrorHint, "install ffmpeg or set transcode.ffmpeg_binary/ffprobe_binary"),
			logging.String(logging.FieldImpact, "jobs will fail validation"),
		)
	}
}
