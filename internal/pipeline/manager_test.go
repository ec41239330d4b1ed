package pipeline_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"videopipe/internal/jobs"
	"videopipe/internal/pipeline"
	"videopipe/internal/publish"
	"videopipe/internal/testsupport"
)

const scenarioURL = "https://cdn.example.test/videos/هجمات_مرعبة/demo-1/index.m3u8"

func TestPipelinePublishesJob(t *testing.T) {
	h := newHarness(t, testsupport.FakeFFmpeg{Segments: 3})
	job := h.submit(t, "demo-1", "horror_attacks", 0)
	events, stop := h.hub.Subscribe(context.Background(), job.ID)
	defer stop()

	h.start(t)
	got := collect(t, events, 10*time.Second)
	final := h.waitTerminal(t, job.ID)

	if final.Status != jobs.StatusPublished {
		t.Fatalf("expected PUBLISHED, got %s (%s)", final.Status, final.ErrorReason)
	}
	if final.PublishedURL != scenarioURL {
		t.Fatalf("published url = %q, want %q", final.PublishedURL, scenarioURL)
	}
	if final.ProgressPercent != 100 || final.CompressedSizeBytes <= 0 {
		t.Fatalf("unexpected progress/size: %d/%d", final.ProgressPercent, final.CompressedSizeBytes)
	}
	if final.SourceRef != "" {
		t.Fatalf("source ref should be cleared, got %q", final.SourceRef)
	}

	if len(got) == 0 {
		t.Fatal("expected progress events")
	}
	last := -1
	for i, evt := range got {
		if evt.ProgressPercent < last {
			t.Fatalf("progress decreased at event %d: %d < %d", i, evt.ProgressPercent, last)
		}
		last = evt.ProgressPercent
		if (evt.PublishedURL != "") != (evt.Status == jobs.StatusPublished) {
			t.Fatalf("published url must be set iff PUBLISHED: %+v", evt)
		}
		if evt.Terminal() && i != len(got)-1 {
			t.Fatalf("terminal event %d is not the last of %d", i, len(got))
		}
	}
	if tail := got[len(got)-1]; tail.Status != jobs.StatusPublished || tail.PublishedURL != scenarioURL {
		t.Fatalf("unexpected final event %+v", tail)
	}

	keys := h.bucket.Keys()
	if len(keys) != 4 {
		t.Fatalf("expected 3 segments and a manifest, got %v", keys)
	}
	for _, key := range keys {
		if strings.HasSuffix(key, ".mp4") {
			t.Fatalf("raw source uploaded: %s", key)
		}
	}
	puts := h.bucket.Puts()
	if puts[len(puts)-1] != publish.ObjectKey(job.FolderLabel, job.ID, "index.m3u8") {
		t.Fatalf("manifest must be stored last, puts=%v", puts)
	}

	if pathExists(filepath.Join(h.cfg.Paths.StagingDir, job.ID)) {
		t.Fatal("staged source should be removed after publish")
	}
	if pathExists(filepath.Join(h.cfg.Paths.WorkDir, job.ID)) {
		t.Fatal("work dir should be removed after publish")
	}
	for _, args := range h.ffmpeg.Args(t) {
		if strings.Contains(args, "crop=") {
			t.Fatalf("crop 0 must not add a crop filter: %s", args)
		}
	}

	h.manager.Stop()
	stored, err := h.store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if stored.Metadata.Title != "attack" || len(stored.Metadata.Tags) == 0 {
		t.Fatalf("expected fallback metadata, got %+v", stored.Metadata)
	}
}

func TestPipelinePassesCropToEncoder(t *testing.T) {
	h := newHarness(t, testsupport.FakeFFmpeg{})
	job := h.submit(t, "crop-1", "shock", 40)
	h.start(t)
	final := h.waitTerminal(t, job.ID)
	if final.Status != jobs.StatusPublished {
		t.Fatalf("expected PUBLISHED, got %s (%s)", final.Status, final.ErrorReason)
	}
	args := h.ffmpeg.Args(t)
	if len(args) != 1 || !strings.Contains(args[0], "crop=in_w:in_h-40:0:0") {
		t.Fatalf("expected crop filter in encoder args, got %v", args)
	}
}

func TestPipelineTranscodeFailuresExhaustRetries(t *testing.T) {
	h := newHarness(t, testsupport.FakeFFmpeg{FailAlways: true, ExitCode: 187, Diagnostic: "Error while opening encoder for output stream"})
	job := h.submit(t, "fail-1", "horror_attacks", 0)
	events, stop := h.hub.Subscribe(context.Background(), job.ID)
	defer stop()

	h.start(t)
	got := collect(t, events, 10*time.Second)
	final := h.waitTerminal(t, job.ID)

	if final.Status != jobs.StatusError {
		t.Fatalf("expected ERROR, got %s", final.Status)
	}
	if !strings.Contains(final.ErrorReason, "Error while opening encoder for output stream") {
		t.Fatalf("error reason should carry the last diagnostic, got %q", final.ErrorReason)
	}
	if final.PublishedURL != "" {
		t.Fatalf("failed job must not have a published url: %q", final.PublishedURL)
	}
	if calls := h.ffmpeg.Calls(t); calls != 3 {
		t.Fatalf("expected 3 encoder runs, got %d", calls)
	}
	if keys := h.bucket.Keys(); len(keys) != 0 {
		t.Fatalf("no objects may be uploaded, got %v", keys)
	}
	if final.SourceRef != "" {
		t.Fatalf("source ref should be cleared on ERROR, got %q", final.SourceRef)
	}
	if pathExists(filepath.Join(h.cfg.Paths.StagingDir, job.ID)) {
		t.Fatal("staged source should be removed after ERROR is committed")
	}
	if pathExists(filepath.Join(h.cfg.Paths.WorkDir, job.ID)) {
		t.Fatal("work dir should be removed after ERROR is committed")
	}

	terminal := 0
	for _, evt := range got {
		if evt.Terminal() {
			terminal++
		}
		if evt.Status == jobs.StatusError && evt.ErrorReason == "" {
			t.Fatal("ERROR event must carry a reason")
		}
	}
	if terminal != 1 {
		t.Fatalf("expected exactly one terminal event, got %d", terminal)
	}
}

func TestPipelineRetriesTransientTranscodeFailure(t *testing.T) {
	h := newHarness(t, testsupport.FakeFFmpeg{FailRuns: 2})
	job := h.submit(t, "flaky-1", "shock", 0)
	h.start(t)
	final := h.waitTerminal(t, job.ID)
	if final.Status != jobs.StatusPublished {
		t.Fatalf("expected PUBLISHED, got %s (%s)", final.Status, final.ErrorReason)
	}
	if calls := h.ffmpeg.Calls(t); calls != 3 {
		t.Fatalf("expected 3 encoder runs, got %d", calls)
	}
}

func TestPipelineFatalDiagnosticSkipsRetry(t *testing.T) {
	h := newHarness(t, testsupport.FakeFFmpeg{FailAlways: true, Diagnostic: "av_interleaved_write_frame(): No space left on device"})
	job := h.submit(t, "full-1", "shock", 0)
	h.start(t)
	final := h.waitTerminal(t, job.ID)
	if final.Status != jobs.StatusError {
		t.Fatalf("expected ERROR, got %s", final.Status)
	}
	if calls := h.ffmpeg.Calls(t); calls != 1 {
		t.Fatalf("fatal failures must not retry, got %d runs", calls)
	}
}

func TestPipelineValidationFailureNeverTranscodes(t *testing.T) {
	h := newHarness(t, testsupport.FakeFFmpeg{}, withHeight(720))
	job := h.submit(t, "crop-too-big", "shock", 720)
	events, stop := h.hub.Subscribe(context.Background(), job.ID)
	defer stop()

	h.start(t)
	got := collect(t, events, 10*time.Second)
	final := h.waitTerminal(t, job.ID)

	if final.Status != jobs.StatusError || !strings.Contains(final.ErrorReason, "exceeds source height") {
		t.Fatalf("expected validation ERROR, got %s %q", final.Status, final.ErrorReason)
	}
	if len(got) != 1 || got[0].Status != jobs.StatusError {
		t.Fatalf("job must go straight from PENDING to ERROR, events=%+v", got)
	}
	if calls := h.ffmpeg.Calls(t); calls != 0 {
		t.Fatalf("encoder must not run, got %d runs", calls)
	}
}

func TestPipelineUploadRetryUsesLedger(t *testing.T) {
	h := newHarness(t, testsupport.FakeFFmpeg{Segments: 3})
	// Exhaust the per-object budget once so the whole phase retries.
	h.bucket.FailPut("seg_001.ts", h.cfg.Storage.ObjectAttempts)
	job := h.submit(t, "ledger-1", "shock", 0)
	h.start(t)
	final := h.waitTerminal(t, job.ID)
	if final.Status != jobs.StatusPublished {
		t.Fatalf("expected PUBLISHED, got %s (%s)", final.Status, final.ErrorReason)
	}
	first := publish.ObjectKey(job.FolderLabel, job.ID, "seg_000.ts")
	count := 0
	for _, key := range h.bucket.Puts() {
		if key == first {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("already stored segment uploaded %d times", count)
	}
}

func TestPipelineUploadFailureLeavesNoObjects(t *testing.T) {
	h := newHarness(t, testsupport.FakeFFmpeg{Segments: 3})
	h.bucket.FailPut("index.m3u8", 1000)
	job := h.submit(t, "upload-fail", "shock", 0)
	h.start(t)
	final := h.waitTerminal(t, job.ID)
	if final.Status != jobs.StatusError {
		t.Fatalf("expected ERROR, got %s", final.Status)
	}
	if final.CompressedSizeBytes <= 0 {
		t.Fatal("compressed size is recorded once transcode completes")
	}
	if keys := h.bucket.Keys(); len(keys) != 0 {
		t.Fatalf("failed upload must leave no objects, got %v", keys)
	}
	if pathExists(filepath.Join(h.cfg.Paths.StagingDir, job.ID)) || pathExists(filepath.Join(h.cfg.Paths.WorkDir, job.ID)) {
		t.Fatal("local artifacts should be removed after ERROR is committed")
	}
}

func TestPipelineDeleteDuringUploadCancels(t *testing.T) {
	h := newHarness(t, testsupport.FakeFFmpeg{Segments: 5})
	h.bucket.PutDelay = 30 * time.Millisecond
	job := h.submit(t, "delete-1", "horror_attacks", 0)

	var once sync.Once
	h.bucket.OnPut = func(string) {
		once.Do(func() {
			if err := h.manager.Delete(context.Background(), job.ID); err != nil {
				t.Errorf("Delete failed: %v", err)
			}
		})
	}
	events, stop := h.hub.Subscribe(context.Background(), job.ID)
	defer stop()

	h.start(t)
	got := collect(t, events, 10*time.Second)
	waitFor(t, 5*time.Second, "worker to release deleted job", func() bool {
		return len(h.manager.Status(context.Background()).ActiveJobs) == 0
	})

	prefix := publish.Prefix(job.FolderLabel, job.ID)
	for _, key := range h.bucket.Keys() {
		if strings.HasPrefix(key, prefix) {
			t.Fatalf("object left under deleted job prefix: %s", key)
		}
	}
	if exists, _ := h.store.Exists(context.Background(), job.ID); exists {
		t.Fatal("job record should be gone")
	}
	if _, ok := h.hub.Last(job.ID); ok {
		t.Fatal("hub should forget deleted jobs")
	}
	if pathExists(filepath.Join(h.cfg.Paths.StagingDir, job.ID)) || pathExists(filepath.Join(h.cfg.Paths.WorkDir, job.ID)) {
		t.Fatal("local artifacts should be removed")
	}
	for _, evt := range got {
		if evt.Status == jobs.StatusPublished {
			t.Fatal("deleted job must not publish")
		}
	}
}

func TestPipelineDeleteDuringTranscodeKillsEncoder(t *testing.T) {
	h := newHarness(t, testsupport.FakeFFmpeg{SleepSeconds: 5})
	job := h.submit(t, "delete-2", "shock", 0)
	h.start(t)

	waitFor(t, 5*time.Second, "transcode to start", func() bool {
		got, err := h.store.Get(context.Background(), job.ID)
		return err == nil && got.Status == jobs.StatusProcessingTranscode && h.ffmpeg.Calls(t) == 1
	})
	started := time.Now()
	if err := h.manager.Delete(context.Background(), job.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	waitFor(t, 3*time.Second, "worker to release deleted job", func() bool {
		return len(h.manager.Status(context.Background()).ActiveJobs) == 0
	})
	if elapsed := time.Since(started); elapsed > 3*time.Second {
		t.Fatalf("encoder was not killed promptly (%s)", elapsed)
	}
	if calls := h.ffmpeg.Calls(t); calls != 1 {
		t.Fatalf("cancelled encode must not be retried, got %d runs", calls)
	}
}

func TestPipelineTranscodeTimeout(t *testing.T) {
	h := newHarness(t, testsupport.FakeFFmpeg{SleepSeconds: 3},
		withMaxAttempts(2),
		withTimings(func(tm *pipeline.Timings) { tm.Transcode = 150 * time.Millisecond }),
	)
	job := h.submit(t, "slow-1", "shock", 0)
	h.start(t)
	final := h.waitTerminal(t, job.ID)
	if final.Status != jobs.StatusError || !strings.Contains(final.ErrorReason, "timeout") {
		t.Fatalf("expected timeout ERROR, got %s %q", final.Status, final.ErrorReason)
	}
	if calls := h.ffmpeg.Calls(t); calls != 2 {
		t.Fatalf("expected one retry after timeout, got %d runs", calls)
	}
}

func TestPipelineReclaimsExpiredInFlightJob(t *testing.T) {
	h := newHarness(t, testsupport.FakeFFmpeg{})
	job := h.submit(t, "crashed-1", "shock", 0)
	ctx := context.Background()

	claimed, err := h.store.Claim(ctx, job.ID, "crashed-worker", time.Millisecond)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if _, err := h.store.UpdateStatus(ctx, job.ID, claimed.Expect(), jobs.StatusProcessingTranscode, jobs.Fields{}); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	h.start(t)
	var final *jobs.Job
	waitFor(t, 5*time.Second, "lease expiry to fail the job", func() bool {
		got, err := h.store.Get(ctx, job.ID)
		final = got
		return err == nil && got.Status == jobs.StatusError
	})
	if final.ErrorReason != jobs.LeaseExpiredReason {
		t.Fatalf("unexpected reason %q", final.ErrorReason)
	}
	waitFor(t, time.Second, "ERROR event", func() bool {
		evt, ok := h.hub.Last(job.ID)
		return ok && evt.Status == jobs.StatusError
	})
	if calls := h.ffmpeg.Calls(t); calls != 0 {
		t.Fatalf("expired in-flight job must not be re-run, got %d runs", calls)
	}
}

func TestPipelineConcurrentWorkers(t *testing.T) {
	h := newHarness(t, testsupport.FakeFFmpeg{Segments: 2}, withWorkers(2))
	ids := []string{"multi-1", "multi-2", "multi-3", "multi-4"}
	for _, id := range ids {
		h.submit(t, id, "shock", 0)
	}
	h.start(t)
	for _, id := range ids {
		final := h.waitTerminal(t, id)
		if final.Status != jobs.StatusPublished {
			t.Fatalf("job %s ended %s (%s)", id, final.Status, final.ErrorReason)
		}
	}
	if keys := h.bucket.Keys(); len(keys) != len(ids)*3 {
		t.Fatalf("expected %d objects, got %d", len(ids)*3, len(keys))
	}
}

// Heartbeat and deletion polling tick continuously while status commits
// land, so run with -race to check the watchers stay off the job snapshot.
func TestPipelineWatchersRunAlongsideStatusChanges(t *testing.T) {
	h := newHarness(t, testsupport.FakeFFmpeg{Segments: 4}, withWorkers(2),
		withTimings(func(tm *pipeline.Timings) {
			tm.Heartbeat = time.Millisecond
			tm.CancelPoll = time.Millisecond
		}),
	)
	h.bucket.PutDelay = 5 * time.Millisecond
	ids := []string{"beat-1", "beat-2", "beat-3"}
	for _, id := range ids {
		h.submit(t, id, "horror_attacks", 0)
	}
	h.start(t)
	for _, id := range ids {
		final := h.waitTerminal(t, id)
		if final.Status != jobs.StatusPublished {
			t.Fatalf("job %s ended %s (%s)", id, final.Status, final.ErrorReason)
		}
		if final.ClaimToken != "" || final.LeaseExpiresAt != nil {
			t.Fatalf("published job %s still holds a claim: %+v", id, final)
		}
	}
}

func TestManagerDeletePublishedJobRemovesObjects(t *testing.T) {
	h := newHarness(t, testsupport.FakeFFmpeg{})
	job := h.submit(t, "gone-1", "shock", 0)
	h.start(t)
	if final := h.waitTerminal(t, job.ID); final.Status != jobs.StatusPublished {
		t.Fatalf("expected PUBLISHED, got %s", final.Status)
	}
	if err := h.manager.Delete(context.Background(), job.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if keys := h.bucket.Keys(); len(keys) != 0 {
		t.Fatalf("expected bucket to be empty, got %v", keys)
	}
	if _, ok := h.hub.Last(job.ID); ok {
		t.Fatal("hub should forget deleted jobs")
	}
	if err := h.manager.Delete(context.Background(), job.ID); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestManagerStatus(t *testing.T) {
	h := newHarness(t, testsupport.FakeFFmpeg{}, withWorkers(3))
	if status := h.manager.Status(context.Background()); status.Running {
		t.Fatal("manager should not be running before Start")
	}
	h.start(t)
	if err := h.manager.Start(context.Background()); err == nil {
		t.Fatal("expected error starting twice")
	}
	status := h.manager.Status(context.Background())
	if !status.Running || status.Workers != 3 {
		t.Fatalf("unexpected status %+v", status)
	}
	h.manager.Stop()
	if status := h.manager.Status(context.Background()); status.Running {
		t.Fatal("manager should report stopped")
	}
}
