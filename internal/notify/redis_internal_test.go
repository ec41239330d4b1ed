package notify

import (
	"encoding/json"
	"testing"
	"time"

	"videopipe/internal/config"
	"videopipe/internal/jobs"
	"videopipe/internal/logging"
)

func TestNewRedisSinkDisabledWithoutAddr(t *testing.T) {
	if sink := NewRedisSink(config.Events{}, logging.NewNop()); sink != nil {
		t.Fatal("expected nil sink without redis_addr")
	}
}

func TestRedisPayload(t *testing.T) {
	evt := Event{
		Sequence:        3,
		JobID:           "demo-1",
		Status:          jobs.StatusPublished,
		ProgressPercent: 100,
		PublishedURL:    "https://cdn.example.test/videos/general/demo-1/index.m3u8",
		Time:            time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	payload, err := encodeEvent(evt)
	if err != nil {
		t.Fatalf("encodeEvent failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["status"] != "PUBLISHED" || decoded["job_id"] != "demo-1" {
		t.Fatalf("unexpected payload %s", payload)
	}
	if _, ok := decoded["error_reason"]; ok {
		t.Fatalf("empty error_reason should be omitted: %s", payload)
	}

	fields := snapshotFields(evt)
	if fields["published_url"] != evt.PublishedURL || fields["status"] != "PUBLISHED" {
		t.Fatalf("unexpected snapshot fields %v", fields)
	}
	if _, ok := fields["error_reason"]; ok {
		t.Fatalf("unexpected error_reason in %v", fields)
	}
	if SnapshotKey("demo-1") != "videopipe:job:demo-1" {
		t.Fatalf("unexpected key %q", SnapshotKey("demo-1"))
	}
}

func TestRedisDeliverUnreachableDoesNotBlock(t *testing.T) {
	sink := NewRedisSink(config.Events{RedisAddr: "127.0.0.1:1", Channel: "test"}, logging.NewNop())
	defer sink.Close()
	started := time.Now()
	sink.Deliver(Event{JobID: "x", Status: jobs.StatusPending})
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("delivery blocked for %s", elapsed)
	}
}
