package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"videopipe/internal/logging"
	"videopipe/internal/services"
)

// waitDelay bounds how long Wait blocks on pipes held open by ffmpeg children
// after the process was killed.
const waitDelay = 2 * time.Second

// Transcoder runs ffmpeg and ffprobe on behalf of the pipeline.
type Transcoder struct {
	ffmpeg  string
	ffprobe string
	logger  *slog.Logger
}

// Probe summarizes what validation learned about a source.
type Probe struct {
	Width           int
	Height          int
	DurationSeconds float64
	VideoCodec      string
	AudioStreams    int
	SizeBytes       int64
}

// Option customizes a single Transcode call.
type Option func(*runOptions)

type runOptions struct {
	progress        func(float64)
	durationSeconds float64
}

// WithProgress registers a callback receiving encode completion in percent.
// It is called from the goroutine reading ffmpeg output.
func WithProgress(fn func(percent float64)) Option {
	return func(o *runOptions) { o.progress = fn }
}

// WithDuration supplies the source duration used to turn encoder timestamps
// into percentages. Without it only completion is reported.
func WithDuration(seconds float64) Option {
	return func(o *runOptions) { o.durationSeconds = seconds }
}

// New constructs a Transcoder. Empty binary names fall back to PATH lookups.
func New(ffmpegBinary, ffprobeBinary string, logger *slog.Logger) *Transcoder {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(ffprobeBinary) == "" {
		ffprobeBinary = "ffprobe"
	}
	return &Transcoder{
		ffmpeg:  ffmpegBinary,
		ffprobe: ffprobeBinary,
		logger:  logging.NewComponentLogger(logger, "transcoder"),
	}
}

// Validate probes sourcePath and checks cropBottomPx against the frame.
// Unusable sources and crops fail with services.ErrValidation.
func (t *Transcoder) Validate(ctx context.Context, sourcePath string, cropBottomPx int) (Probe, error) {
	if cropBottomPx < 0 {
		return Probe{}, services.Wrap(services.ErrValidation, "validate", "crop", fmt.Sprintf("crop %dpx is negative", cropBottomPx), nil)
	}
	info, err := os.Stat(sourcePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Probe{}, services.Wrap(services.ErrNotFound, "validate", "stat source", "source file missing", err)
		}
		return Probe{}, services.Wrap(services.ErrTransient, "validate", "stat source", "", err)
	}
	if info.IsDir() {
		return Probe{}, services.Wrap(services.ErrValidation, "validate", "stat source", "source is a directory", nil)
	}

	result, err := probe(ctx, t.ffprobe, sourcePath)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return Probe{}, services.Wrap(services.ErrCanceled, "validate", "ffprobe", "", ctx.Err())
		case errors.Is(err, exec.ErrNotFound):
			return Probe{}, services.Wrap(services.ErrConfiguration, "validate", "ffprobe", "ffprobe binary not found", err)
		default:
			return Probe{}, services.Wrap(services.ErrValidation, "validate", "ffprobe", "unsupported or malformed source", err)
		}
	}

	video, ok := result.PrimaryVideo()
	if !ok {
		return Probe{}, services.Wrap(services.ErrValidation, "validate", "ffprobe", "unsupported or malformed source: no video stream", nil)
	}
	if video.Height <= 0 {
		return Probe{}, services.Wrap(services.ErrValidation, "validate", "ffprobe", "video stream reports no frame height", nil)
	}
	if cropBottomPx >= video.Height {
		return Probe{}, services.Wrap(services.ErrValidation, "validate", "crop",
			fmt.Sprintf("crop %dpx exceeds source height %dpx", cropBottomPx, video.Height), nil)
	}
	if (video.Height-cropBottomPx)%2 != 0 {
		return Probe{}, services.Wrap(services.ErrValidation, "validate", "crop",
			fmt.Sprintf("cropped height %dpx must be even", video.Height-cropBottomPx), nil)
	}

	size := result.SizeBytes()
	if size <= 0 {
		size = info.Size()
	}
	return Probe{
		Width:           video.Width,
		Height:          video.Height,
		DurationSeconds: result.DurationSeconds(),
		VideoCodec:      video.CodecName,
		AudioStreams:    result.AudioStreamCount(),
		SizeBytes:       size,
	}, nil
}

// Transcode encodes sourcePath into outputDir, which must be empty or absent.
// On any failure outputDir is removed before returning.
func (t *Transcoder) Transcode(ctx context.Context, sourcePath, outputDir string, cropBottomPx int, opts ...Option) (SegmentSet, error) {
	var cfg runOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cropBottomPx < 0 {
		return SegmentSet{}, services.Wrap(services.ErrValidation, "transcode", "crop", fmt.Sprintf("crop %dpx is negative", cropBottomPx), nil)
	}
	if err := prepareOutputDir(outputDir); err != nil {
		return SegmentSet{}, err
	}

	var sourceBytes int64
	if info, err := os.Stat(sourcePath); err == nil {
		sourceBytes = info.Size()
	}
	if err := ensureFreeSpace(outputDir, sourceBytes); err != nil {
		_ = os.RemoveAll(outputDir)
		return SegmentSet{}, err
	}

	set, err := t.run(ctx, sourcePath, outputDir, cropBottomPx, cfg)
	if err != nil {
		if rmErr := os.RemoveAll(outputDir); rmErr != nil {
			t.logger.Warn("remove partial transcode output failed",
				logging.String("dir", outputDir),
				logging.Error(rmErr),
				logging.String(logging.FieldEventType, "transcode_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "remove the directory manually"),
			)
		}
		return SegmentSet{}, err
	}
	return set, nil
}

func (t *Transcoder) run(ctx context.Context, sourcePath, outputDir string, cropBottomPx int, cfg runOptions) (SegmentSet, error) {
	args := BuildArgs(sourcePath, outputDir, cropBottomPx)
	cmd := exec.CommandContext(ctx, t.ffmpeg, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Kill the whole group so helper processes release the pipes.
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	stderr := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return SegmentSet{}, services.Wrap(services.ErrTransient, "transcode", "ffmpeg", "open progress pipe", err)
	}

	logger := logging.WithContext(ctx, t.logger)
	logger.Debug("ffmpeg command", logging.String("binary", t.ffmpeg), logging.String("args", strings.Join(args, " ")))
	started := time.Now()

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return SegmentSet{}, services.Wrap(services.ErrConfiguration, "transcode", "ffmpeg", "ffmpeg binary not found", err)
		}
		return SegmentSet{}, services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", "start encoder", err)
	}

	tracker := newProgressTracker(cfg.durationSeconds, cfg.progress)
	tracker.consume(stdout)
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return SegmentSet{}, services.Wrap(services.ErrTimeout, "transcode", "ffmpeg", "encode exceeded phase timeout", ctxErr)
		}
		return SegmentSet{}, services.Wrap(services.ErrCanceled, "transcode", "ffmpeg", "encode cancelled", ctxErr)
	}
	if waitErr != nil {
		encErr := &EncodeError{ExitCode: -1, Stderr: stderr.String()}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			encErr.ExitCode = exitErr.ExitCode()
		}
		marker := services.ErrExternalTool
		if isFatalDiagnostic(encErr.Stderr) {
			marker = services.ErrFatal
		}
		logger.Warn("ffmpeg failed",
			logging.Int("exit_code", encErr.ExitCode),
			logging.String("stderr", encErr.Stderr),
			logging.String(logging.FieldEventType, "transcode_failed"),
			logging.String(logging.FieldErrorHint, "inspect ffmpeg diagnostics"),
		)
		return SegmentSet{}, services.Wrap(marker, "transcode", "ffmpeg", "encode failed", encErr)
	}
	if tracker.report != nil {
		tracker.emit(100)
	}

	set, err := LoadSegmentSet(outputDir)
	if err != nil {
		return SegmentSet{}, err
	}
	logger.Info("transcode complete",
		logging.Int("segments", len(set.Segments)),
		logging.Int64("bytes", set.TotalBytes),
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
		logging.String(logging.FieldEventType, "transcode_complete"),
	)
	return set, nil
}

func prepareOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return services.Wrap(services.ErrFatal, "transcode", "prepare output", "output directory not set", nil)
	}
	entries, err := os.ReadDir(dir)
	switch {
	case err == nil:
		if len(entries) > 0 {
			return services.Wrap(services.ErrFatal, "transcode", "prepare output",
				fmt.Sprintf("output directory %s is not empty", filepath.Base(dir)), nil)
		}
	case !errors.Is(err, os.ErrNotExist):
		return services.Wrap(services.ErrTransient, "transcode", "prepare output", "read output directory", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrFatal, "transcode", "prepare output", "create output directory", err)
	}
	return nil
}
