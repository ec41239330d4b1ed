// Package staging removes per-job directories that no longer belong to a job.
package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"videopipe/internal/fileutil"
	"videopipe/internal/logging"
)

// Policy decides which entries survive a sweep.
type Policy struct {
	// Grace protects entries younger than this, covering directories created
	// just before their job record.
	Grace time.Duration
	// Keep reports whether the entry named after a job id is still needed.
	// A nil Keep removes every entry older than Grace.
	Keep func(ctx context.Context, name string, age time.Duration) bool
}

// Result contains the outcome of a sweep.
type Result struct {
	Removed    []string
	FreedBytes int64
	Errors     []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// Sweep removes entries of dir that the policy does not keep.
func Sweep(ctx context.Context, dir string, policy Policy, logger *slog.Logger) Result {
	result := Result{}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return result
	}
	logger = logging.NewComponentLogger(logger, "staging")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		}
		return result
	}

	now := time.Now()
	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		age := now.Sub(info.ModTime())
		if age < policy.Grace {
			continue
		}
		if policy.Keep != nil && policy.Keep(ctx, entry.Name(), age) {
			continue
		}

		size := info.Size()
		if entry.IsDir() {
			size = fileutil.DirSize(path)
		}
		if err := os.RemoveAll(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			logging.WarnWithContext(logger, "failed to remove stale directory", "staging_cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check directory permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
		result.FreedBytes += size
		logger.Info("removed stale directory",
			logging.String("path", path),
			logging.Duration("age", age.Round(time.Second)),
			logging.Int64("bytes", size),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return result
}

// DirInfo describes one job directory.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// ListDirectories returns the job directories under dir.
func ListDirectories(dir string) ([]DirInfo, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		dirs = append(dirs, DirInfo{
			Name:    entry.Name(),
			Path:    path,
			ModTime: info.ModTime(),
			Size:    fileutil.DirSize(path),
		})
	}
	return dirs, nil
}
