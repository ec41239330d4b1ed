package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"videopipe/internal/category"
	"videopipe/internal/config"
	"videopipe/internal/jobs"
	"videopipe/internal/logging"
	"videopipe/internal/metadata"
	"videopipe/internal/notify"
	"videopipe/internal/pipeline"
	"videopipe/internal/publish"
	"videopipe/internal/testsupport"
	"videopipe/internal/transcode"
)

type harnessOptions struct {
	height      int
	workers     int
	maxAttempts int
	timings     func(*pipeline.Timings)
}

type harness struct {
	cfg      *config.Config
	store    *jobs.Store
	hub      *notify.Hub
	bucket   *testsupport.MemoryBucket
	ffmpeg   testsupport.FakeFFmpegBinary
	manager  *pipeline.Manager
	resolver *category.Resolver
}

func testTimings() pipeline.Timings {
	return pipeline.Timings{
		Poll:         10 * time.Millisecond,
		ErrorBackoff: 10 * time.Millisecond,
		Heartbeat:    20 * time.Millisecond,
		Lease:        5 * time.Second,
		CancelPoll:   10 * time.Millisecond,
		RetryBase:    time.Millisecond,
		RetryMax:     5 * time.Millisecond,
		Transcode:    10 * time.Second,
		Upload:       10 * time.Second,
		Finalize:     5 * time.Second,
	}
}

func newHarness(t *testing.T, spec testsupport.FakeFFmpeg, opts ...func(*harnessOptions)) *harness {
	t.Helper()
	options := harnessOptions{height: 720, workers: 1, maxAttempts: 3}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(options.workers), testsupport.WithMaxAttempts(options.maxAttempts))
	binDir := filepath.Join(testsupport.BaseDir(cfg), "bin")
	ffmpeg := testsupport.WriteFakeFFmpeg(t, binDir, spec)
	ffprobe := testsupport.WriteFakeFFprobe(t, binDir, 1280, options.height, 9)
	t.Cleanup(transcode.SetDiskFreeForTests(func(string) (uint64, error) { return 1 << 40, nil }))

	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	hub := notify.NewHub(0, logger)
	bucket := testsupport.NewMemoryBucket()

	timings := testTimings()
	if options.timings != nil {
		options.timings(&timings)
	}
	manager := pipeline.NewManager(cfg, pipeline.Dependencies{
		Store:      store,
		Transcoder: transcode.New(ffmpeg.Path, ffprobe, logger),
		Uploader:   publish.New(bucket, cfg, logger),
		Hub:        hub,
		Metadata:   metadata.BestEffort(nil, logger),
	}, logger, pipeline.WithTimings(timings))

	return &harness{
		cfg:      cfg,
		store:    store,
		hub:      hub,
		bucket:   bucket,
		ffmpeg:   ffmpeg,
		manager:  manager,
		resolver: category.NewResolver(cfg.Categories.DefaultLabel, nil),
	}
}

func withHeight(h int) func(*harnessOptions) {
	return func(o *harnessOptions) { o.height = h }
}

func withWorkers(n int) func(*harnessOptions) {
	return func(o *harnessOptions) { o.workers = n }
}

func withMaxAttempts(n int) func(*harnessOptions) {
	return func(o *harnessOptions) { o.maxAttempts = n }
}

func withTimings(fn func(*pipeline.Timings)) func(*harnessOptions) {
	return func(o *harnessOptions) { o.timings = fn }
}

// submit stages a source file and creates a PENDING job with a fixed id.
func (h *harness) submit(t *testing.T, id, categoryID string, crop int) *jobs.Job {
	t.Helper()
	source := filepath.Join(h.cfg.Paths.StagingDir, id, "source.mp4")
	testsupport.WriteVideoFile(t, source, 2048)
	job := &jobs.Job{
		ID:                id,
		Filename:          "attack.mp4",
		SourceRef:         source,
		OriginalSizeBytes: 2048,
		Category:          categoryID,
		FolderLabel:       h.resolver.Resolve(categoryID),
		CropBottomPx:      crop,
		AspectVariant:     jobs.AspectWide,
	}
	if _, err := h.store.Create(context.Background(), job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return job
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(h.manager.Stop)
}

// collect drains a subscription until it closes.
func collect(t *testing.T, ch <-chan notify.Event, timeout time.Duration) []notify.Event {
	t.Helper()
	var events []notify.Event
	deadline := time.After(timeout)
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, evt)
		case <-deadline:
			t.Fatalf("subscription did not close within %s; got %d events", timeout, len(events))
			return events
		}
	}
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitTerminal(t *testing.T, id string) *jobs.Job {
	t.Helper()
	var job *jobs.Job
	waitFor(t, 10*time.Second, "terminal status of "+id, func() bool {
		got, err := h.store.Get(context.Background(), id)
		if err != nil {
			return false
		}
		job = got
		return got.Status.IsTerminal()
	})
	waitFor(t, 5*time.Second, "worker release of "+id, func() bool {
		for _, active := range h.manager.Status(context.Background()).ActiveJobs {
			if active == id {
				return false
			}
		}
		return true
	})
	return job
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
