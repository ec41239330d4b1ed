package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"videopipe/internal/fileutil"
)

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp4")
	dst := filepath.Join(dir, "source.mp4")
	content := []byte("not really a video but close enough")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	n, err := fileutil.CopyFileVerified(src, dst)
	if err != nil {
		t.Fatalf("CopyFileVerified failed: %v", err)
	}
	if n != int64(len(content)) {
		t.Fatalf("expected %d bytes, got %d", len(content), n)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read copy: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: %q", got)
	}
	if _, err := os.Stat(dst + ".partial"); !os.IsNotExist(err) {
		t.Fatal("partial file should not remain")
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatal("copy must keep the source")
	}
}

func TestCopyFileVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.mp4")
	if _, err := fileutil.CopyFileVerified(filepath.Join(dir, "missing.mp4"), dst); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatal("destination should not exist")
	}
}

func TestCopyFileVerifiedRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	if _, err := fileutil.CopyFileVerified(dir, filepath.Join(dir, "x")); err == nil {
		t.Fatal("expected error for directory source")
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mov")
	dst := filepath.Join(dir, "b.mov")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := fileutil.MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("source should be gone after move")
	}
	if got, err := os.ReadFile(dst); err != nil || string(got) != "payload" {
		t.Fatalf("unexpected destination content %q (%v)", got, err)
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "hls")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 10), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "b"), make([]byte, 32), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := fileutil.DirSize(dir); got != 42 {
		t.Fatalf("expected 42 bytes, got %d", got)
	}
	if got := fileutil.DirSize(filepath.Join(dir, "missing")); got != 0 {
		t.Fatalf("expected 0 for missing dir, got %d", got)
	}
}
