package testsupport

import (
	"context"
	"testing"

	"videopipe/internal/config"
	"videopipe/internal/jobs"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a PENDING job with sensible defaults. sourceRef may be empty.
func NewJob(t testing.TB, store *jobs.Store, filename, sourceRef string) *jobs.Job {
	t.Helper()

	job := &jobs.Job{
		Filename:      filename,
		SourceRef:     sourceRef,
		Category:      "horror_attacks",
		FolderLabel:   "هجمات_مرعبة",
		AspectVariant: jobs.AspectWide,
	}
	if _, err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return job
}
