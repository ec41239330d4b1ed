package pipeline

import (
	"errors"
	"strings"
	"testing"

	"videopipe/internal/jobs"
	"videopipe/internal/services"
)

func TestUploadPercentBands(t *testing.T) {
	cases := []struct {
		done, segments int
		manifest       bool
		want           int
	}{
		{0, 4, false, 50},
		{1, 4, false, 60},
		{4, 4, false, 90},
		{9, 4, false, 90},
		{0, 0, false, 50},
		{5, 4, true, 95},
	}
	for _, tc := range cases {
		if got := uploadPercent(tc.done, tc.segments, tc.manifest); got != tc.want {
			t.Fatalf("uploadPercent(%d, %d, %v) = %d, want %d", tc.done, tc.segments, tc.manifest, got, tc.want)
		}
	}
}

func TestFailureReasonHidesLocalPaths(t *testing.T) {
	job := &jobs.Job{
		ID:        "job-1",
		Filename:  "attack.mp4",
		SourceRef: "/srv/videopipe/staging/job-1/source.mp4",
	}
	cause := services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", "encode failed",
		errors.New("/srv/videopipe/staging/job-1/source.mp4: Invalid data found when processing input"))

	got := failureReason(cause, job)
	if strings.Contains(got, "/srv/videopipe") || strings.Contains(got, "staging") {
		t.Fatalf("reason leaks local paths: %q", got)
	}
	if !strings.Contains(got, "attack.mp4: Invalid data found when processing input") {
		t.Fatalf("reason should name the submitted file, got %q", got)
	}

	long := failureReason(errors.New(strings.Repeat("x", 1000)), job)
	if len([]rune(long)) != reasonLimit {
		t.Fatalf("reason not truncated: %d runes", len([]rune(long)))
	}
}
