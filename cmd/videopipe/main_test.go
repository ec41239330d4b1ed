package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"videopipe/internal/api"
	"videopipe/internal/jobs"
	"videopipe/internal/notify"
	"videopipe/internal/testsupport"
)

const unreachableAPI = "127.0.0.1:1"

func TestSubmitListShowDelete(t *testing.T) {
	env := setupCLITestEnv(t)
	source := env.video(t, "attack.mp4")

	out, err := env.run(t, "submit", source, "--category", "horror_attacks", "--json")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	var job api.Job
	if err := json.Unmarshal([]byte(out), &job); err != nil {
		t.Fatalf("decode submit output %q: %v", out, err)
	}
	if job.ID == "" || job.Status != string(jobs.StatusPending) {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.FolderLabel != "هجمات_مرعبة" {
		t.Fatalf("expected folder label هجمات_مرعبة, got %q", job.FolderLabel)
	}
	if _, err := os.Stat(source); err != nil {
		t.Fatalf("copy submit should keep the source: %v", err)
	}

	out, err = env.run(t, "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	requireContains(t, out, job.ID)
	requireContains(t, out, "attack.mp4")

	out, err = env.run(t, "show", job.ID)
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	requireContains(t, out, "horror_attacks (هجمات_مرعبة)")
	requireContains(t, out, "Status:      PENDING")

	out, err = env.run(t, "delete", job.ID)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	requireContains(t, out, "Deleted job "+job.ID)

	if _, err := env.run(t, "show", job.ID); !errors.Is(err, errJobNotFound) {
		t.Fatalf("expected errJobNotFound after delete, got %v", err)
	}
}

func TestSubmitRequiresCategory(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := env.run(t, "submit", env.video(t, "clip.mp4"))
	if err == nil || !strings.Contains(err.Error(), "--category") {
		t.Fatalf("expected missing category error, got %v", err)
	}
}

func TestSubmitRejectedByDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := env.run(t, "submit", filepath.Join(env.baseDir, "missing.mp4"), "--category", "shock")
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Fatalf("expected a 400 from the daemon, got %v", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	job := testsupport.NewJob(t, env.store, "pending.mp4", "")

	out, err := env.run(t, "list", "--status", "published")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	requireContains(t, out, "No jobs")

	out, err = env.run(t, "list", "-s", "pending,error", "--json")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var resp api.JobListResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode list output: %v", err)
	}
	if len(resp.Jobs) != 1 || resp.Jobs[0].ID != job.ID {
		t.Fatalf("unexpected jobs: %+v", resp.Jobs)
	}
}

func TestReadCommandsFallBackToStore(t *testing.T) {
	env := setupCLITestEnv(t)
	job := testsupport.NewJob(t, env.store, "offline.mp4", "")

	out, err := runCLI(t, unreachableAPI, env.configPath, "list")
	if err != nil {
		t.Fatalf("list without daemon failed: %v", err)
	}
	requireContains(t, out, job.ID)

	out, err = runCLI(t, unreachableAPI, env.configPath, "show", job.ID)
	if err != nil {
		t.Fatalf("show without daemon failed: %v", err)
	}
	requireContains(t, out, "offline.mp4")

	out, err = runCLI(t, unreachableAPI, env.configPath, "stats")
	if err != nil {
		t.Fatalf("stats without daemon failed: %v", err)
	}
	requireContains(t, out, "PENDING")

	if _, err := runCLI(t, unreachableAPI, env.configPath, "list", "--status", "bogus"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestMutationsRequireDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := runCLI(t, unreachableAPI, env.configPath, "delete", "some-id")
	if err == nil || !strings.Contains(err.Error(), "daemon not reachable") {
		t.Fatalf("expected daemon hint, got %v", err)
	}
}

func TestDeleteUnknownJob(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "delete", "does-not-exist")
	if !errors.Is(err, errJobNotFound) {
		t.Fatalf("expected errJobNotFound, got %v", err)
	}
	requireContains(t, out, "Job does-not-exist not found")
}

func TestWatchPrintsPublishedURL(t *testing.T) {
	env := setupCLITestEnv(t)
	job := testsupport.NewJob(t, env.store, "watched.mp4", "")
	url := "https://cdn.example.test/videos/هجمات_مرعبة/" + job.ID + "/master.m3u8"

	publish(t, env.hub, job.ID, notify.Event{Status: jobs.StatusProcessingTranscode, ProgressPercent: 10})
	publish(t, env.hub, job.ID, notify.Event{Status: jobs.StatusUploading, ProgressPercent: 80})
	publish(t, env.hub, job.ID, notify.Event{Status: jobs.StatusPublished, ProgressPercent: 100, PublishedURL: url})

	out, err := env.run(t, "watch", job.ID)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	requireContains(t, out, "PROCESSING_TRANSCODE 10%")
	requireContains(t, out, "UPLOADING 80%")
	requireContains(t, out, "Published: "+url)
}

func TestWatchReportsFailure(t *testing.T) {
	env := setupCLITestEnv(t)
	job := testsupport.NewJob(t, env.store, "broken.mp4", "")
	publish(t, env.hub, job.ID, notify.Event{Status: jobs.StatusError, ErrorReason: "ffmpeg exited with status 187"})

	_, err := env.run(t, "watch", job.ID)
	if err == nil || !strings.Contains(err.Error(), "ffmpeg exited with status 187") {
		t.Fatalf("expected failure reason, got %v", err)
	}
}

func TestWatchSeedsFromStore(t *testing.T) {
	env := setupCLITestEnv(t)
	job := testsupport.NewJob(t, env.store, "restart.mp4", "")
	current, err := env.store.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := env.store.UpdateStatus(context.Background(), job.ID, current.Expect(), jobs.StatusError, jobs.Fields{ErrorReason: "daemon restarted"}); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	_, err = env.run(t, "watch", job.ID)
	if err == nil || !strings.Contains(err.Error(), "daemon restarted") {
		t.Fatalf("expected stored failure reason, got %v", err)
	}
}

func TestStatsIncludesStorage(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewJob(t, env.store, "counted.mp4", "")

	out, err := env.run(t, "stats", "--storage")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	requireContains(t, out, "PENDING")
	requireContains(t, out, "videos-test")
}

func TestCategoriesCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	for _, addr := range []string{env.server.URL, unreachableAPI} {
		out, err := runCLI(t, addr, env.configPath, "categories")
		if err != nil {
			t.Fatalf("categories via %s failed: %v", addr, err)
		}
		requireContains(t, out, "horror_attacks")
		requireContains(t, out, "هجمات_مرعبة")
		requireContains(t, out, "صدمة")
	}
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	requireContains(t, out, "running (pid")
	requireContains(t, out, "FFmpeg")

	out, err = runCLI(t, unreachableAPI, env.configPath, "status")
	if err != nil {
		t.Fatalf("status without daemon failed: %v", err)
	}
	requireContains(t, out, "not running at "+unreachableAPI)
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := env.run(t, "test-notify")
	if err != nil {
		t.Fatalf("test-notify failed: %v", err)
	}
	requireContains(t, out, "nothing sent")
}

func publish(t *testing.T, hub *notify.Hub, id string, evt notify.Event) {
	t.Helper()
	evt.JobID = id
	if _, err := hub.Publish(id, evt); err != nil {
		t.Fatalf("hub.Publish failed: %v", err)
	}
}
