package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"videopipe/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", "encode failed", base)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcode", "ffmpeg", "encode failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
	if got := services.Wrap(nil, "", "", "", nil); !errors.Is(got, services.ErrTransient) {
		t.Fatalf("nil marker should default to transient, got %v", got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"nil", nil, services.KindNone},
		{"validation", services.Wrap(services.ErrValidation, "validate", "probe", "no video stream", nil), services.KindValidation},
		{"fatal", services.Wrap(services.ErrFatal, "transcode", "disk", "no space left", nil), services.KindFatal},
		{"configuration", services.Wrap(services.ErrConfiguration, "upload", "bucket", "missing", nil), services.KindFatal},
		{"timeout", services.Wrap(services.ErrTimeout, "upload", "put", "deadline", context.DeadlineExceeded), services.KindTransient},
		{"tool crash", services.Wrap(services.ErrExternalTool, "transcode", "ffmpeg", "exit 1", nil), services.KindTransient},
		{"plain", errors.New("connection reset"), services.KindTransient},
		{"canceled ctx", fmt.Errorf("upload: %w", context.Canceled), services.KindCanceled},
		{"canceled marker over transient", services.Wrap(services.ErrCanceled, "upload", "", "job deleted", services.ErrTransient), services.KindCanceled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Classify(tc.err); got != tc.want {
				t.Fatalf("Classify = %q, want %q", got, tc.want)
			}
		})
	}
	if !services.Retryable(errors.New("503")) {
		t.Fatal("unknown errors should be retryable")
	}
	if services.Retryable(services.ErrValidation) {
		t.Fatal("validation errors must not be retried")
	}
}

func TestSummaryCollapsesAndTruncates(t *testing.T) {
	err := errors.New("ffmpeg exited\n  with status 1:\tInvalid data found when processing input")
	got := services.Summary(err, 0)
	if got != "ffmpeg exited with status 1: Invalid data found when processing input" {
		t.Fatalf("unexpected summary %q", got)
	}
	short := services.Summary(err, 20)
	if len([]rune(short)) != 20 || !strings.HasSuffix(short, "...") {
		t.Fatalf("unexpected truncated summary %q", short)
	}
	arabic := services.Summary(errors.New("فشل رفع الملف إلى التخزين"), 6)
	if len([]rune(arabic)) != 6 {
		t.Fatalf("expected rune-safe truncation, got %q", arabic)
	}
	if services.Summary(nil, 10) != "" {
		t.Fatal("nil error should summarise to empty string")
	}
}

func TestScrubPathsHidesLocalLayout(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		aliases []string
		want    string
	}{
		{
			name:    "alias wins",
			text:    "validate: probe: stat /srv/staging/job-1/source.mp4: no such file or directory",
			aliases: []string{"/srv/staging/job-1/source.mp4", "clip.mp4"},
			want:    "validate: probe: stat clip.mp4: no such file or directory",
		},
		{
			name: "ffmpeg input line",
			text: "ffmpeg exited with status 1: /srv/work/job-1/hls/seg_%05d.ts: Permission denied",
			want: "ffmpeg exited with status 1: seg_%05d.ts: Permission denied",
		},
		{
			name: "quoted path",
			text: "open '/home/op/videos/clip.mp4' failed",
			want: "open 'clip.mp4' failed",
		},
		{
			name: "urls untouched",
			text: "put https://storage.test/videos-test/x/index.m3u8: 503",
			want: "put https://storage.test/videos-test/x/index.m3u8: 503",
		},
		{
			name:    "empty alias ignored",
			text:    "encode failed",
			aliases: []string{"", "clip.mp4"},
			want:    "encode failed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.ScrubPaths(tc.text, tc.aliases...); got != tc.want {
				t.Fatalf("ScrubPaths = %q, want %q", got, tc.want)
			}
		})
	}
}
