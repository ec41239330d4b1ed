package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"videopipe/internal/category"
	"videopipe/internal/config"
	"videopipe/internal/fileutil"
	"videopipe/internal/jobs"
	"videopipe/internal/logging"
	"videopipe/internal/notify"
	"videopipe/internal/services"
)

// SourceBaseName is the staged raw file name; the original extension is kept.
const SourceBaseName = "source"

// Request describes a video submission.
type Request struct {
	Filename      string `json:"filename"`
	SourceRef     string `json:"source_ref"`
	Category      string `json:"category"`
	CropBottomPx  int    `json:"crop_bottom_px"`
	AspectVariant string `json:"aspect_variant"`
	// Move renames the source into staging instead of copying it.
	Move bool `json:"move"`
}

// Service creates PENDING jobs from submissions.
type Service struct {
	cfg      *config.Config
	store    *jobs.Store
	resolver *category.Resolver
	hub      *notify.Hub
	logger   *slog.Logger
}

// New constructs the submission service. hub may be nil.
func New(cfg *config.Config, store *jobs.Store, resolver *category.Resolver, hub *notify.Hub, logger *slog.Logger) *Service {
	if resolver == nil {
		resolver = category.NewResolver(cfg.Categories.DefaultLabel, cfg.Categories.Extra)
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		hub:      hub,
		logger:   logging.NewComponentLogger(logger, "ingest"),
	}
}

// Submit validates req, stages the source, and creates a PENDING job.
func (s *Service) Submit(ctx context.Context, req Request) (*jobs.Job, error) {
	if s == nil || s.store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "submit", "job store unavailable", nil)
	}
	source := strings.TrimSpace(req.SourceRef)
	if source == "" {
		return nil, validationError("source path is required")
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "ingest", "resolve source", source, err)
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = filepath.Base(abs)
	}
	if req.CropBottomPx < 0 {
		return nil, validationError(fmt.Sprintf("crop_bottom_px must be >= 0 (got %d)", req.CropBottomPx))
	}
	aspect, ok := jobs.ParseAspectVariant(req.AspectVariant)
	if !ok {
		return nil, validationError(fmt.Sprintf("aspect variant must be WIDE or TALL (got %q)", req.AspectVariant))
	}
	ext := strings.ToLower(filepath.Ext(abs))
	if !slices.Contains(s.cfg.Transcode.AllowedExtensions, ext) {
		return nil, validationError(fmt.Sprintf("unsupported container %q", ext))
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrValidation, "ingest", "stat source", "source file not found", err)
		}
		return nil, services.Wrap(services.ErrTransient, "ingest", "stat source", abs, err)
	}
	if info.IsDir() {
		return nil, validationError("source must be a file")
	}
	if err := sniffVideo(abs); err != nil {
		return nil, err
	}

	categoryID := strings.TrimSpace(req.Category)
	if categoryID == "" {
		categoryID = category.DefaultLabel
	}
	job := &jobs.Job{
		ID:                uuid.NewString(),
		Filename:          filename,
		OriginPath:        abs,
		OriginalSizeBytes: info.Size(),
		Category:          categoryID,
		FolderLabel:       s.resolver.Resolve(categoryID),
		CropBottomPx:      req.CropBottomPx,
		AspectVariant:     aspect,
	}
	staged, err := s.stage(abs, job.ID, ext, req.Move)
	if err != nil {
		return nil, err
	}
	job.SourceRef = staged
	if req.Move {
		job.OriginPath = ""
	}
	return s.create(ctx, job)
}

// Resubmit creates a new job from a failed one. The failed record is left
// untouched. A staged source that survived (lease-expired jobs keep theirs)
// is handed over; otherwise the original upload location is used, which only
// exists for copied submissions.
func (s *Service) Resubmit(ctx context.Context, id string) (*jobs.Job, error) {
	if s == nil || s.store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "resubmit", "job store unavailable", nil)
	}
	prev, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return nil, services.Wrap(services.ErrNotFound, "ingest", "resubmit", "job "+id, err)
		}
		return nil, err
	}
	if prev.Status != jobs.StatusError {
		return nil, validationError(fmt.Sprintf("only failed jobs can be resubmitted (job %s is %s)", id, prev.Status))
	}

	source, move := "", false
	switch {
	case fileExists(prev.SourceRef):
		source, move = prev.SourceRef, true
	case fileExists(prev.OriginPath):
		source = prev.OriginPath
	default:
		return nil, services.Wrap(services.ErrNotFound, "ingest", "resubmit", "source material no longer available", nil)
	}

	job := &jobs.Job{
		ID:                uuid.NewString(),
		Filename:          prev.Filename,
		OriginPath:        prev.OriginPath,
		OriginalSizeBytes: prev.OriginalSizeBytes,
		Category:          prev.Category,
		FolderLabel:       prev.FolderLabel,
		CropBottomPx:      prev.CropBottomPx,
		AspectVariant:     prev.AspectVariant,
	}
	staged, err := s.stage(source, job.ID, strings.ToLower(filepath.Ext(source)), move)
	if err != nil {
		return nil, err
	}
	job.SourceRef = staged
	created, err := s.create(ctx, job)
	if err != nil {
		return nil, err
	}
	s.logger.Info("job resubmitted",
		logging.String(logging.FieldJobID, created.ID),
		logging.String("previous_job_id", prev.ID),
		logging.String(logging.FieldEventType, "job_resubmitted"),
	)
	return created, nil
}

// StagingDir returns the per-job staging directory.
func StagingDir(cfg *config.Config, jobID string) string {
	return filepath.Join(cfg.Paths.StagingDir, jobID)
}

func (s *Service) create(ctx context.Context, job *jobs.Job) (*jobs.Job, error) {
	if _, err := s.store.Create(ctx, job); err != nil {
		_ = os.RemoveAll(StagingDir(s.cfg, job.ID))
		if errors.Is(err, jobs.ErrInvalidJob) {
			return nil, services.Wrap(services.ErrValidation, "ingest", "create job", "rejected", err)
		}
		return nil, services.Wrap(services.ErrTransient, "ingest", "create job", "store write failed", err)
	}
	if s.hub != nil {
		if _, err := s.hub.Publish(job.ID, notify.FromJob(job)); err != nil {
			s.logger.Debug("pending event not published", logging.String(logging.FieldJobID, job.ID), logging.Error(err))
		}
	}
	s.logger.Info("job submitted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("filename", job.Filename),
		logging.String("category", job.Category),
		logging.String("folder_label", job.FolderLabel),
		logging.Int64("original_size_bytes", job.OriginalSizeBytes),
		logging.String(logging.FieldEventType, "job_submitted"),
	)
	return job, nil
}

func (s *Service) stage(source, jobID, ext string, move bool) (string, error) {
	dir := StagingDir(s.cfg, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrFatal, "ingest", "stage", "create staging dir", err)
	}
	target := filepath.Join(dir, SourceBaseName+ext)
	if move {
		if err := fileutil.MoveFile(source, target); err != nil {
			_ = os.RemoveAll(dir)
			return "", services.Wrap(services.ErrTransient, "ingest", "stage", "move source", err)
		}
		return target, nil
	}
	if _, err := fileutil.CopyFileVerified(source, target); err != nil {
		_ = os.RemoveAll(dir)
		return "", services.Wrap(services.ErrTransient, "ingest", "stage", "copy source", err)
	}
	return target, nil
}

func sniffVideo(path string) error {
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return services.Wrap(services.ErrTransient, "ingest", "sniff", "read source header", err)
	}
	for m := detected; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "video/") {
			return nil
		}
	}
	return validationError(fmt.Sprintf("unsupported container: detected %s", detected.String()))
}

func validationError(msg string) error {
	return services.Wrap(services.ErrValidation, "ingest", "validate", msg, nil)
}

func fileExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
