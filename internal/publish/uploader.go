package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"videopipe/internal/config"
	"videopipe/internal/logging"
	"videopipe/internal/services"
	"videopipe/internal/transcode"
)

// UploadError reports the object whose upload failed.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Uploader publishes encoded job output to a Bucket.
type Uploader struct {
	bucket       Bucket
	publicDomain string
	attempts     int
	baseDelay    time.Duration
	maxDelay     time.Duration
	logger       *slog.Logger
}

// Option customizes a single Publish call.
type Option func(*publishOptions)

type publishOptions struct {
	ledger   *Ledger
	progress func(done, total int, manifest bool)
}

// WithLedger shares a ledger across attempts so stored objects are skipped.
func WithLedger(l *Ledger) Option {
	return func(o *publishOptions) { o.ledger = l }
}

// WithProgress reports after every stored object. manifest is true for the
// final call, once the playlist itself is stored.
func WithProgress(fn func(done, total int, manifest bool)) Option {
	return func(o *publishOptions) { o.progress = fn }
}

// New builds an Uploader from storage and retry settings.
func New(bucket Bucket, cfg *config.Config, logger *slog.Logger) *Uploader {
	u := &Uploader{
		bucket:   bucket,
		attempts: defaultRetries,
		logger:   logging.NewComponentLogger(logger, "uploader"),
	}
	if cfg != nil {
		u.publicDomain = cfg.Storage.PublicDomain
		if cfg.Storage.ObjectAttempts > 0 {
			u.attempts = cfg.Storage.ObjectAttempts
		}
		u.baseDelay = cfg.Workflow.RetryBaseDelay()
		u.maxDelay = cfg.Workflow.RetryMaxDelay()
	}
	return u
}

// Publish uploads the segment set in localDir and returns the public playlist
// URL once the manifest is stored.
func (u *Uploader) Publish(ctx context.Context, localDir, jobID, folderLabel string, opts ...Option) (string, error) {
	var cfg publishOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if err := validatePathPart("job id", jobID); err != nil {
		return "", err
	}
	if err := validatePathPart("folder label", folderLabel); err != nil {
		return "", err
	}

	manifestPath := filepath.Join(localDir, transcode.ManifestName)
	refs, err := transcode.ParsePlaylist(manifestPath)
	if err != nil {
		return "", services.Wrap(services.ErrFatal, "upload", "read manifest", "", err)
	}

	segments := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref != path.Base(ref) || strings.ToLower(path.Ext(ref)) != SegmentExt {
			return "", services.Wrap(services.ErrFatal, "upload", "read manifest", fmt.Sprintf("manifest references non-segment %q", ref), nil)
		}
		segments = append(segments, ref)
	}
	total := len(segments) + 1
	logger := logging.WithContext(ctx, u.logger)

	done := 0
	for _, name := range segments {
		key := ObjectKey(folderLabel, jobID, name)
		if !cfg.ledger.Has(key) {
			if err := u.putWithRetry(ctx, logger, key, filepath.Join(localDir, name)); err != nil {
				return "", err
			}
			cfg.ledger.Mark(key)
		}
		done++
		if cfg.progress != nil {
			cfg.progress(done, total, false)
		}
	}

	manifestKey := ObjectKey(folderLabel, jobID, transcode.ManifestName)
	if err := u.putWithRetry(ctx, logger, manifestKey, manifestPath); err != nil {
		return "", err
	}
	cfg.ledger.Mark(manifestKey)
	if cfg.progress != nil {
		cfg.progress(total, total, true)
	}

	url := PublicURL(u.publicDomain, folderLabel, jobID)
	logger.Info("publish complete",
		logging.Int("objects", total),
		logging.String("url", url),
		logging.String(logging.FieldEventType, "publish_complete"),
	)
	return url, nil
}

func (u *Uploader) putWithRetry(ctx context.Context, logger *slog.Logger, key, localPath string) error {
	ctype, ok := contentType(localPath)
	if !ok {
		return services.Wrap(services.ErrFatal, "upload", "put object", fmt.Sprintf("refusing to upload %s", filepath.Base(localPath)), nil)
	}
	if _, err := os.Stat(localPath); err != nil {
		return services.Wrap(services.ErrFatal, "upload", "put object", fmt.Sprintf("local file %s unavailable", filepath.Base(localPath)), err)
	}

	var lastErr error
	for attempt := 1; attempt <= u.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return ctxError(err, key)
		}
		err := u.bucket.PutFile(ctx, key, localPath, ctype)
		if err == nil {
			logger.Debug("object stored", logging.String("key", key), logging.Int(logging.FieldAttempt, attempt))
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxError(ctxErr, key)
		}
		lastErr = err
		kind := services.Classify(err)
		if kind != services.KindTransient {
			break
		}
		if attempt < u.attempts {
			delay := services.Backoff(u.baseDelay, u.maxDelay, attempt)
			logger.Warn("object upload failed; retrying",
				logging.String("key", key),
				logging.Int(logging.FieldAttempt, attempt),
				logging.Duration("retry_in", delay),
				logging.Error(err),
				logging.String(logging.FieldEventType, "object_upload_retry"),
				logging.String(logging.FieldErrorHint, "check storage connectivity"),
			)
			if err := services.Sleep(ctx, delay); err != nil {
				return ctxError(err, key)
			}
		}
	}

	marker := services.ErrTransient
	switch services.Classify(lastErr) {
	case services.KindFatal:
		marker = services.ErrFatal
	case services.KindValidation:
		marker = services.ErrValidation
	}
	return services.Wrap(marker, "upload", "put object", "", &UploadError{Key: key, Err: lastErr})
}

func ctxError(err error, key string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "upload", "put object", key, err)
	}
	return services.Wrap(services.ErrCanceled, "upload", "put object", key, err)
}

// DeletePrefix removes every object stored for a job and returns how many were
// deleted. Individual failures do not stop the sweep.
func (u *Uploader) DeletePrefix(ctx context.Context, folderLabel, jobID string) (int, error) {
	if err := validatePathPart("job id", jobID); err != nil {
		return 0, err
	}
	if err := validatePathPart("folder label", folderLabel); err != nil {
		return 0, err
	}
	prefix := Prefix(folderLabel, jobID)
	objects, err := u.bucket.List(ctx, prefix)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "upload", "list objects", prefix, err)
	}
	removed := 0
	var errs []error
	for _, obj := range objects {
		if err := u.bucket.Remove(ctx, obj.Key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", obj.Key, err))
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, services.Wrap(services.ErrTransient, "upload", "delete prefix", prefix, errors.Join(errs...))
	}
	if removed > 0 {
		logging.WithContext(ctx, u.logger).Info("removed remote objects",
			logging.String("prefix", prefix),
			logging.Int("objects", removed),
			logging.String(logging.FieldEventType, "prefix_deleted"),
		)
	}
	return removed, nil
}

// StorageStats summarizes everything under the videos/ root.
type StorageStats struct {
	Videos     int   `json:"videos"`
	Objects    int   `json:"objects"`
	TotalBytes int64 `json:"total_bytes"`
}

// Stats walks the videos/ root. A video is counted per stored manifest.
func (u *Uploader) Stats(ctx context.Context) (StorageStats, error) {
	objects, err := u.bucket.List(ctx, RootPrefix+"/")
	if err != nil {
		return StorageStats{}, services.Wrap(services.ErrTransient, "upload", "list objects", RootPrefix, err)
	}
	var stats StorageStats
	for _, obj := range objects {
		stats.Objects++
		stats.TotalBytes += obj.Size
		if path.Base(obj.Key) == transcode.ManifestName {
			stats.Videos++
		}
	}
	return stats, nil
}
